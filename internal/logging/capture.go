package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capture records every log entry emitted while it is installed, so tests
// can assert on messages and attributes. Attributes added through With are
// flattened onto the record; groups are ignored.
type Capture struct {
	mu      sync.Mutex
	records []slog.Record

	prev      *slog.Logger
	prevLevel slog.Level
}

// CaptureForTest replaces the default logger with a Capture at debug level.
// Restore puts the previous logger and level back.
func CaptureForTest() *Capture {
	c := &Capture{prev: slog.Default(), prevLevel: level.Level()}
	slog.SetDefault(slog.New(captureHandler{c: c}))
	SetLevel(slog.LevelDebug)
	return c
}

// Restore reinstates the logger and level seen by CaptureForTest.
func (c *Capture) Restore() {
	slog.SetDefault(c.prev)
	level.Set(c.prevLevel)
}

// Reset drops the captured records.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.records = nil
	c.mu.Unlock()
}

// Records returns a snapshot of the captured records.
func (c *Capture) Records() []slog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]slog.Record(nil), c.records...)
}

// Count returns how many records were logged at lvl.
func (c *Capture) Count(lvl slog.Level) int {
	return c.count(lvl, func(slog.Record) bool { return true })
}

// Has reports whether a record at lvl has a message containing substr.
func (c *Capture) Has(lvl slog.Level, substr string) bool {
	return c.count(lvl, func(r slog.Record) bool {
		return strings.Contains(r.Message, substr)
	}) > 0
}

// HasAttr reports whether a record at lvl carries key with a value that
// renders as value.
func (c *Capture) HasAttr(lvl slog.Level, key, value string) bool {
	return c.count(lvl, func(r slog.Record) bool {
		found := false
		r.Attrs(func(a slog.Attr) bool {
			found = a.Key == key && a.Value.String() == value
			return !found
		})
		return found
	}) > 0
}

func (c *Capture) count(lvl slog.Level, match func(slog.Record) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.Level == lvl && match(r) {
			n++
		}
	}
	return n
}

func (c *Capture) add(r slog.Record) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

type captureHandler struct {
	c     *Capture
	attrs []slog.Attr
}

func (captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	if len(h.attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(h.attrs...)
	}
	h.c.add(r)
	return nil
}

func (h captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h.attrs = append(append(merged, h.attrs...), attrs...)
	return h
}

func (h captureHandler) WithGroup(string) slog.Handler { return h }
