// Package datasync runs registered persistence callbacks on a timer or on
// demand.
package datasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultInterval is used when StartAutoSync is given a non-positive interval.
const DefaultInterval = 30 * time.Second

// ErrReentrantSync is returned when a callback triggers a sync from inside
// a sync pass.
var ErrReentrantSync = errors.New("sync triggered from inside a sync pass")

// Callback persists one domain. The context passed in is the pass context.
type Callback func(ctx context.Context) error

type passKey struct{}

// Registry maps domain keys to callbacks.
type Registry struct {
	mu        sync.Mutex
	callbacks map[string]Callback

	// timerMu serializes StartAutoSync and StopAutoSync.
	timerMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	passMu sync.Mutex
	logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		callbacks: make(map[string]Callback),
		logger:    slog.Default(),
	}
}

// Register installs cb for key, replacing any previous callback.
func (r *Registry) Register(key string, cb Callback) {
	r.mu.Lock()
	r.callbacks[key] = cb
	r.mu.Unlock()
}

func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	delete(r.callbacks, key)
	r.mu.Unlock()
}

// Keys returns the registered domain keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartAutoSync runs a sync pass every interval until StopAutoSync is called
// or ctx is done. A running timer is stopped first.
func (r *Registry) StartAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	r.stopTimer()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.TriggerSync(ctx); err != nil {
					r.logger.Warn("auto sync pass had failures", "error", err)
				}
			}
		}
	}()
	r.logger.Debug("auto sync started", "interval", interval)
}

// StopAutoSync cancels the timer and waits for an in-flight pass. Calling
// it without a running timer does nothing.
func (r *Registry) StopAutoSync() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	r.stopTimer()
}

func (r *Registry) stopTimer() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether an auto-sync timer is active.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// TriggerSync runs every registered callback once. A failing or panicking
// callback is logged and does not stop the others; the failures are joined
// into the returned error.
func (r *Registry) TriggerSync(ctx context.Context) error {
	if ctx.Value(passKey{}) != nil {
		return ErrReentrantSync
	}

	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.mu.Lock()
	pass := make(map[string]Callback, len(r.callbacks))
	for k, cb := range r.callbacks {
		pass[k] = cb
	}
	r.mu.Unlock()

	passCtx := context.WithValue(ctx, passKey{}, true)
	var errs []error
	for key, cb := range pass {
		if err := r.run(passCtx, key, cb); err != nil {
			r.logger.Error("sync callback failed", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) run(ctx context.Context, key string, cb Callback) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()
	return cb(ctx)
}
