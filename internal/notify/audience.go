package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
)

// AudienceSource lists the recipients of a notification channel
type AudienceSource interface {
	Members(ctx context.Context) ([]string, error)
}

// MemberLister is implemented by the detection store
type MemberLister interface {
	AudienceMembers(ctx context.Context, handler string) ([]string, error)
}

type storeSource struct {
	lister  MemberLister
	handler string
}

// StoreSource reads the audience of handler from the store
func StoreSource(lister MemberLister, handler string) AudienceSource {
	return storeSource{lister: lister, handler: handler}
}

func (s storeSource) Members(ctx context.Context) ([]string, error) {
	return s.lister.AudienceMembers(ctx, s.handler)
}

// Audience caches recipients and optionally refreshes them on a ticker
type Audience struct {
	source AudienceSource
	period time.Duration
	static []string

	mu      sync.RWMutex
	members []string

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAudience creates an audience refreshed from source every period.
// static members are always included.
func NewAudience(source AudienceSource, period time.Duration, static ...string) *Audience {
	a := &Audience{
		source: source,
		period: period,
		static: static,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	a.members = merge(static, nil)
	return a
}

// StaticAudience returns an audience that never changes
func StaticAudience(members ...string) *Audience {
	return NewAudience(nil, 0, members...)
}

// Members returns a snapshot of the current recipients
func (a *Audience) Members() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.members...)
}

// Refresh reloads members from the source. On error the previous members
// are kept.
func (a *Audience) Refresh(ctx context.Context) error {
	if a.source == nil {
		return nil
	}
	loaded, err := a.source.Members(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.members = merge(a.static, loaded)
	a.mu.Unlock()
	return nil
}

// Start loads members once and keeps refreshing until Stop or ctx is done
func (a *Audience) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	log := logger.Named("notify")
	if err := a.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial audience refresh failed")
	}
	if a.source == nil || a.period <= 0 {
		close(a.done)
		return
	}

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-ticker.C:
				if err := a.Refresh(ctx); err != nil {
					log.Warn().Err(err).Msg("audience refresh failed")
				}
			}
		}
	}()
}

// Stop ends the refresh loop started by Start
func (a *Audience) Stop() {
	if !a.started.Load() {
		return
	}
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

func merge(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, m := range list {
			if m != "" && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}
