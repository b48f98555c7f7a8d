package sync

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kimhsiao/setforge/backend/internal/logging"
)

// BreakerClient wraps a RemoteService with a circuit breaker so a dead or
// degraded data service is not hammered on every trigger. An open circuit
// surfaces as a transport error, which the engine already treats as a soft,
// retry-counted failure.
type BreakerClient struct {
	remote RemoteService
	cb     *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps remote with a circuit breaker.
// The breaker opens after a 60% failure rate over at least 10 requests,
// resets its counts every minute while closed, and waits 2 minutes before
// probing again once open.
func NewBreakerClient(remote RemoteService) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "remote-data-service",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Remote circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return &BreakerClient{remote: remote, cb: cb}
}

// execute runs one remote call through the breaker. Application rejections
// (Success=false, nil error) do not count as breaker failures; only
// transport errors do.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// SaveWorkout performs the composite save call through the breaker.
func (b *BreakerClient) SaveWorkout(ctx context.Context, batch *WorkoutBatch) (*RemoteResult, error) {
	out, err := b.execute(func() (any, error) {
		return b.remote.SaveWorkout(ctx, batch)
	})
	return asResult(out), err
}

// Insert creates one remote entity through the breaker.
func (b *BreakerClient) Insert(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error) {
	out, err := b.execute(func() (any, error) {
		return b.remote.Insert(ctx, entityType, id, payload)
	})
	return asResult(out), err
}

// Update replaces one remote entity through the breaker.
func (b *BreakerClient) Update(ctx context.Context, entityType, id string, payload map[string]interface{}) (*RemoteResult, error) {
	out, err := b.execute(func() (any, error) {
		return b.remote.Update(ctx, entityType, id, payload)
	})
	return asResult(out), err
}

// Delete removes one remote entity through the breaker.
func (b *BreakerClient) Delete(ctx context.Context, entityType, id string) (*RemoteResult, error) {
	out, err := b.execute(func() (any, error) {
		return b.remote.Delete(ctx, entityType, id)
	})
	return asResult(out), err
}

// GetLastModified looks up a timestamp through the breaker.
func (b *BreakerClient) GetLastModified(ctx context.Context, entityType, id string) (*int64, error) {
	out, err := b.execute(func() (any, error) {
		return b.remote.GetLastModified(ctx, entityType, id)
	})
	if err != nil {
		return nil, err
	}
	ts, _ := out.(*int64)
	return ts, nil
}

func asResult(out any) *RemoteResult {
	result, _ := out.(*RemoteResult)
	return result
}
