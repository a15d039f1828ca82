package syncapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// poller fires a poll function at a fixed frequency until stopped.
//
// Thread-safety: Start and Stop are safe for concurrent use.
type poller struct {
	name     string
	interval time.Duration
	fire     func(context.Context) error
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newPoller(name string, interval time.Duration, fire func(context.Context) error, logger *slog.Logger) *poller {
	return &poller{name: name, interval: interval, fire: fire, logger: logger}
}

// Start begins firing every interval. The first poll happens one interval
// after Start. Starting a running poller is a no-op.
func (p *poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	if p.interval <= 0 {
		return fmt.Errorf("poller %s: interval must be positive, got %s", p.name, p.interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.fire(ctx); err != nil {
					p.logger.Warn("poll failed", "flow", p.name, "error", err)
				}
			}
		}
	}()

	p.logger.Info("poller started", "flow", p.name, "interval", p.interval)
	return nil
}

// Stop halts the poller and waits for an in-flight poll to return.
// Stopping a stopped poller is a no-op.
func (p *poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("poller stopped", "flow", p.name)
}

// Running reports whether the poller is started.
func (p *poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
