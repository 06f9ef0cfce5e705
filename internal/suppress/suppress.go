// Package suppress tracks paths the agent itself just wrote so that the
// watcher can tell self-inflicted filesystem events apart from user drops.
package suppress

import (
	"context"
	"path/filepath"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultTTL is how long a marked path stays suppressed. Long enough to
// outlive watcher debounce, short enough that a user re-dropping the same
// file later is picked up again.
const DefaultTTL = 10 * time.Second

type clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time { return time.Now() }

// Suppressor remembers recently self-written paths for a bounded interval.
// All methods are safe for concurrent use.
type Suppressor struct {
	ttl   time.Duration
	until *xsync.MapOf[string, time.Time]
	clock clock
}

// New returns a Suppressor with the given TTL, or DefaultTTL when ttl <= 0.
func New(ttl time.Duration) *Suppressor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Suppressor{
		ttl:   ttl,
		until: xsync.NewMapOf[string, time.Time](),
		clock: defaultClock{},
	}
}

// Mark records that path was just written by a tool. Subsequent watcher
// events for it are ignored until the TTL lapses.
func (s *Suppressor) Mark(path string) {
	s.until.Store(filepath.Clean(path), s.clock.Now().Add(s.ttl))
}

// IsSuppressed reports whether path was marked within the TTL. Expired
// entries are removed on sight.
func (s *Suppressor) IsSuppressed(path string) bool {
	key := filepath.Clean(path)
	deadline, ok := s.until.Load(key)
	if !ok {
		return false
	}
	if s.clock.Now().After(deadline) {
		s.until.Delete(key)
		return false
	}
	return true
}

// Serve sweeps expired entries until ctx is done, so paths that are marked
// but never re-observed do not accumulate.
func (s *Suppressor) Serve(ctx context.Context) error {
	t := time.NewTicker(s.ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Suppressor) sweep() {
	now := s.clock.Now()
	s.until.Range(func(key string, deadline time.Time) bool {
		if now.After(deadline) {
			s.until.Delete(key)
		}
		return true
	})
}

// Len reports the number of live entries, counting not-yet-swept expired
// ones. Intended for tests and debug logging.
func (s *Suppressor) Len() int {
	return s.until.Size()
}
