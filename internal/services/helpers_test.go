package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/isdelr/turbinix-be/internal/notify"
	"github.com/isdelr/turbinix-be/internal/store"
	"github.com/isdelr/turbinix-be/internal/store/jsonfile"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := jsonfile.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeDeliverer records every message and optionally fails.
type fakeDeliverer struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (d *fakeDeliverer) Deliver(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return d.err
}

func (d *fakeDeliverer) last(t *testing.T) notify.Message {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.msgs, "no message delivered")
	return d.msgs[len(d.msgs)-1]
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func codeFrom(t *testing.T, msg notify.Message) string {
	t.Helper()
	code := codePattern.FindString(msg.Body)
	require.NotEmpty(t, code, "message body carries no code: %q", msg.Body)
	return code
}
