package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(d time.Duration) (*Cache[string], *clock) {
	c := New[string](d)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c.now = clk.now
	return c, clk
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("fp", "value", 0)
	got, ok := c.Get("fp")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	c.Delete("fp")
	_, ok = c.Get("fp")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	c, clk := newTestCache(time.Minute)

	c.Set("default", "a", 0)
	c.Set("short", "b", time.Second)
	c.Set("forever", "c", -1)

	clk.t = clk.t.Add(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("default")
	assert.True(t, ok)

	clk.t = clk.t.Add(time.Hour)
	_, ok = c.Get("default")
	assert.False(t, ok)
	got, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, "c", got)
}

func TestDefaultDuration(t *testing.T) {
	c := New[int](0)
	assert.Equal(t, 10*time.Minute, c.defaultDuration)
}

func TestSweepOnWrite(t *testing.T) {
	c, clk := newTestCache(time.Second)

	for i := 0; i < sweepEvery/2; i++ {
		c.Set(fmt.Sprintf("old-%d", i), "x", 0)
	}
	clk.t = clk.t.Add(time.Minute)
	for i := 0; i < sweepEvery/2; i++ {
		c.Set(fmt.Sprintf("new-%d", i), "y", 0)
	}

	// the 100th write swept the expired half
	assert.Equal(t, sweepEvery/2, c.Len())
}
