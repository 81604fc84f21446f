package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-sla-engine/internal/observability"
)

// Layer is a read-through cache in front of the repositories. Store failures
// are logged and bypassed; they never fail the caller.
type Layer struct {
	store   Store
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration

	group singleflight.Group
	// epoch moves on every invalidation so a computation that raced a write
	// does not repopulate the store with what it read before the write.
	epoch atomic.Uint64
}

// NewLayer builds a Layer over store. timeout bounds each store call; zero
// leaves calls bounded only by the caller's context.
func NewLayer(store Store, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{store: store, logger: logger, metrics: metrics, timeout: timeout}
}

// GetOrCompute returns the cached value for key, or runs compute, stores its
// result under ttl and returns it. Concurrent misses on one key share a
// single compute, but only with callers that observed the same invalidation
// epoch. The shared compute runs detached from any one caller's cancellation.
func GetOrCompute[T any](ctx context.Context, l *Layer, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if l == nil || l.store == nil {
		return compute(ctx)
	}
	k := key.String()
	class := string(key.Class())
	epoch := l.epoch.Load()

	if raw, err := l.get(ctx, k); err == nil {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			l.metrics.RecordCache(class, "hit")
			return cached, nil
		}
		l.logger.Warn("discarding undecodable cache entry", zap.String("key", k))
	} else if !errors.Is(err, ErrMiss) {
		l.metrics.RecordCache(class, "error")
		l.logger.Warn("cache read failed", zap.String("key", k), zap.Error(err))
	}
	l.metrics.RecordCache(class, "miss")

	flight := k + "#" + strconv.FormatUint(epoch, 10)
	ch := l.group.DoChan(flight, func() (any, error) {
		cctx, cancel := detach(ctx)
		defer cancel()
		val, err := compute(cctx)
		if err != nil {
			return val, err
		}
		l.fill(cctx, class, k, val, ttl, epoch)
		return val, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// fill stores val unless an invalidation ran since epoch was read. An
// invalidation landing during the write is caught by the second check.
func (l *Layer) fill(ctx context.Context, class, key string, val any, ttl time.Duration, epoch uint64) {
	if l.epoch.Load() != epoch {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		l.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.set(ctx, key, raw, ttl); err != nil {
		l.metrics.RecordCache(class, "error")
		l.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if l.epoch.Load() != epoch {
		if err := l.withTimeout(ctx, func(ctx context.Context) error {
			return l.store.Delete(ctx, key)
		}); err != nil {
			l.logger.Warn("cache rollback failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// detach keeps ctx values and deadline but not its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}

// Invalidate drops everything inv names. Failures are logged and returned
// joined; the caller decides whether to surface them.
func (l *Layer) Invalidate(ctx context.Context, inv Invalidation) error {
	if l == nil || l.store == nil {
		return nil
	}
	l.epoch.Add(1)
	var errs []error
	if len(inv.Keys) > 0 {
		if err := l.withTimeout(ctx, func(ctx context.Context) error {
			return l.store.Delete(ctx, inv.Keys...)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	for _, prefix := range inv.Prefixes {
		err := l.withTimeout(ctx, func(ctx context.Context) error {
			n, err := l.store.DeleteByPrefix(ctx, prefix)
			if err == nil {
				l.logger.Debug("cache invalidated", zap.String("prefix", prefix), zap.Int("keys", n))
			}
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
		l.metrics.RecordCache(classOf(prefix), "invalidate")
	}
	err := errors.Join(errs...)
	if err != nil {
		l.logger.Warn("cache invalidation failed", zap.Error(err))
	}
	return err
}

// InvalidatePrefixes is shorthand for Invalidate with prefixes only.
func (l *Layer) InvalidatePrefixes(ctx context.Context, prefixes ...string) error {
	return l.Invalidate(ctx, Invalidation{Prefixes: prefixes})
}

func (l *Layer) get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := l.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		raw, err = l.store.Get(ctx, key)
		return err
	})
	return raw, err
}

func (l *Layer) set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	return l.withTimeout(ctx, func(ctx context.Context) error {
		return l.store.Set(ctx, key, raw, ttl)
	})
}

func (l *Layer) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if l.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return fn(ctx)
}

func classOf(prefix string) string {
	for i := 0; i < len(prefix); i++ {
		if prefix[i] == ':' {
			return prefix[:i]
		}
	}
	return prefix
}
