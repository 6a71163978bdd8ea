package server

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/psd2attr/internal/certconfig"
	"github.com/evidenceledger/psd2attr/internal/handlers"
	"github.com/evidenceledger/psd2attr/internal/models"
	"github.com/evidenceledger/psd2attr/internal/testcert"
)

const adminPassword = "test-admin"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(certconfig.Config{
		Port:          "0",
		URL:           "https://attr.example.com",
		AdminPassword: adminPassword,
		DatabasePath:  filepath.Join(t.TempDir(), "test.db"),
		CacheTTL:      time.Minute,
		AssertionTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func fixture(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("../psd2/testdata/psd2_qwac.pem")
	require.NoError(t, err)
	return string(b)
}

func do(t *testing.T, s *Server, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func postAttributes(t *testing.T, s *Server, query string, attrs map[string]any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(attrs)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/attributes"+query, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func firstRow(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	rows, ok := body["rows"].([]any)
	require.True(t, ok, "rows missing: %v", body)
	require.Len(t, rows, 1)
	return rows[0].(map[string]any)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := do(t, s, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestPostAttributes(t *testing.T) {
	s := newTestServer(t)

	status, body := postAttributes(t, s, "", map[string]any{"x5c": fixture(t)})
	require.Equal(t, http.StatusOK, status, body)

	row := firstRow(t, body)
	assert.Equal(t, "PSDFI-FSA-112233", row[models.ColumnOrganizationIdentifier])
	assert.Equal(t, []any{"PSP_AI", "PSP_IC", "PSP_PI"}, row[models.ColumnRoles])
	assert.NotContains(t, body, "assertion")
}

func TestPostAttributesErrors(t *testing.T) {
	s := newTestServer(t)

	malformed := testcert.NewPEM(t, testcert.Options{
		OrganizationIdentifiers: []string{"PSDFI-FSA-1"},
		QCStatements:            testcert.Encode(t, testcert.Int(5)),
	})

	tests := []struct {
		name   string
		attrs  map[string]any
		status int
		code   string
	}{
		{"missing certificate", map[string]any{"subject": "teddie"}, http.StatusBadRequest, "invalid_input"},
		{"certificate not a string", map[string]any{"x5c": []string{"a"}}, http.StatusBadRequest, "invalid_input"},
		{"undecodable certificate", map[string]any{"x5c": "not a certificate"}, http.StatusBadRequest, "invalid_input"},
		{"no organization identifier", map[string]any{"x5c": testcert.NewPEM(t, testcert.Options{})}, http.StatusUnauthorized, "access_denied"},
		{"malformed qcStatements", map[string]any{"x5c": malformed}, http.StatusInternalServerError, "generic_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postAttributes(t, s, "", tt.attrs)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["error_description"])
			if tt.code == "generic_error" {
				assert.Equal(t, handlers.GenericErrorDescription, body["error_description"])
				assert.NotContains(t, body["error_description"], "QCStatements")
			}
		})
	}
}

func TestPostAttributesInvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/attributes", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	status, body := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["error"])
}

func TestAttributesForSubject(t *testing.T) {
	s := newTestServer(t)
	status, body := do(t, s, httptest.NewRequest("GET", "/attributes/subject/teddie", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["error"])
}

func TestAttributesMTLS(t *testing.T) {
	s := newTestServer(t)

	block, _ := pem.Decode([]byte(fixture(t)))
	require.NotNil(t, block)

	req := httptest.NewRequest("GET", "/attributes/mtls", nil)
	req.Header.Set("tls-client-certificate", base64.StdEncoding.EncodeToString(block.Bytes))
	status, body := do(t, s, req)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "PSDFI-FSA-112233", firstRow(t, body)[models.ColumnOrganizationIdentifier])

	status, body = do(t, s, httptest.NewRequest("GET", "/attributes/mtls", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["error"])
}

func TestAttributeAssertionVerifiesAgainstJWKS(t *testing.T) {
	s := newTestServer(t)

	status, body := postAttributes(t, s, "?assertion=true", map[string]any{"x5c": fixture(t)})
	require.Equal(t, http.StatusOK, status, body)

	assertion, ok := body["assertion"].(map[string]any)
	require.True(t, ok, "assertion missing: %v", body)
	token, _ := assertion["token"].(string)
	require.NotEmpty(t, token)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/.well-known/jwks.json", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	set, err := jwk.Parse(raw)
	require.NoError(t, err)
	key, ok := set.Key(0)
	require.True(t, ok)

	var pub rsa.PublicKey
	require.NoError(t, jwk.Export(key, &pub))

	claims := &models.AttributeClaims{}
	_, err = gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) { return &pub, nil })
	require.NoError(t, err)
	assert.Equal(t, "PSDFI-FSA-112233", claims.Subject)
	assert.Equal(t, "https://attr.example.com", claims.Issuer)
	assert.Equal(t, []string{"PSP_AI", "PSP_IC", "PSP_PI"}, claims.Roles)
	assert.NotEmpty(t, claims.CertificateThumbprint)
}

func TestAdminLookups(t *testing.T) {
	s := newTestServer(t)

	postAttributes(t, s, "", map[string]any{"x5c": fixture(t)})
	postAttributes(t, s, "", map[string]any{"subject": "teddie"})

	status, _ := do(t, s, httptest.NewRequest("GET", "/admin/lookups", nil))
	assert.Equal(t, http.StatusUnauthorized, status)

	req := httptest.NewRequest("GET", "/admin/lookups?limit=10", nil)
	req.SetBasicAuth("admin", adminPassword)
	status, body := do(t, s, req)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	lookups := body["lookups"].([]any)
	failed := lookups[0].(map[string]any)
	assert.Equal(t, models.OutcomeFailure, failed["outcome"])
	assert.Equal(t, "invalid_input", failed["error_code"])

	ok := lookups[1].(map[string]any)
	assert.Equal(t, models.OutcomeSuccess, ok["outcome"])
	assert.Equal(t, "PSDFI-FSA-112233", ok["organization_identifier"])
	assert.NotEmpty(t, ok["fingerprint"])
}

func TestAdminDashboard(t *testing.T) {
	s := newTestServer(t)

	postAttributes(t, s, "", map[string]any{"x5c": fixture(t)})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.SetBasicAuth("admin", adminPassword)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "PSDFI-FSA-112233")
	assert.Contains(t, string(page), "PSP_AI, PSP_IC, PSP_PI")
}
