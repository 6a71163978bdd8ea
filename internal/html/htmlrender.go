package html

import (
	"bytes"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"

	"github.com/evidenceledger/psd2attr/internal/errl"
)

//go:embed views/*
var viewsfs embed.FS

// ExternalViewsDir is where templates are read from in development mode.
const ExternalViewsDir = "internal/html/views"

type RendererFiber struct {
	engine *html.Engine
}

// NewRendererFiber creates a new HTML renderer.
// If templateDebug is true, the templates are loaded from ExternalViewsDir and
// reloaded on every render, otherwise the embedded templates are used.
func NewRendererFiber(templateDebug bool) (*RendererFiber, error) {

	engine, err := newEngine(templateDebug, viewsfs, ExternalViewsDir)
	if err != nil {
		return nil, errl.Error(err)
	}

	renderer := &RendererFiber{
		engine: engine,
	}

	return renderer, nil
}

func newEngine(templateDebug bool, viewsfs embed.FS, extDir string) (*html.Engine, error) {
	var engine *html.Engine

	if templateDebug {
		engine = html.NewFileSystem(http.Dir(extDir), ".hbs")
		engine.Reload(true)
	} else {
		viewsDir, err := fs.Sub(viewsfs, "views")
		if err != nil {
			return nil, errl.Error(err)
		}
		engine = html.NewFileSystem(http.FS(viewsDir), ".hbs")
	}

	engine.AddFunc("formatTime", formatTime)

	err := engine.Load()
	if err != nil {
		return nil, errl.Error(err)
	}

	return engine, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// ResponseSecurityHeadersFiber sets the security headers for the response
func ResponseSecurityHeadersFiber(c *fiber.Ctx) {

	c.Set("Content-Security-Policy", "frame-ancestors 'none';")
	c.Set("X-Frame-Options", "DENY")
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	c.Set("Cross-Origin-Opener-Policy", "same-origin")
	c.Set("Cross-Origin-Resource-Policy", "same-site")
	c.Set("X-Powered-By", "webserver")

}

func (h *RendererFiber) Render(c *fiber.Ctx, templateName string, data map[string]any, layout ...string) error {

	c.Set("Content-Type", "text/html; charset=utf-8")
	ResponseSecurityHeadersFiber(c)

	out := &bytes.Buffer{}

	if err := h.engine.Render(out, templateName, data, layout...); err != nil {
		slog.Error("Error rendering template",
			slog.String("template", templateName),
			slog.String("error", err.Error()),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "rendering response")
	}

	return c.Send(out.Bytes())

}
