// Package sync provides the offline mutation queue and synchronization engine.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/kimhsiao/setforge/backend/internal/errors"
	"github.com/kimhsiao/setforge/backend/internal/logging"
	"github.com/kimhsiao/setforge/backend/internal/models"
)

// DefaultRetryCeiling is the attempt count after which a mutation is excluded
// from automatic processing. It stays in the queue and in DeadLetters.
const DefaultRetryCeiling = 5

// Result is the aggregate outcome of one Process run. Items skipped at the
// retry ceiling or held back by conflict policy count toward neither field.
type Result struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// EngineConfig tunes one engine instance.
type EngineConfig struct {
	RetryCeiling        int
	ConflictToleranceMs int64
	Policy              Policy
}

// DefaultEngineConfig returns the shipped engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RetryCeiling:        DefaultRetryCeiling,
		ConflictToleranceMs: DefaultConflictToleranceMs,
		Policy:              PolicyClientWins,
	}
}

// Engine reconciles the durable queue with the remote data service. It never
// schedules itself; external triggers call Process, and the cooperative lock
// in the store collapses overlapping triggers into one run.
type Engine struct {
	store   Store
	remote  RemoteService
	oracle  Oracle
	bus     *Bus
	checker Checker
	cfg     EngineConfig
}

// NewEngine creates an Engine. bus may be nil when nothing observes the run.
func NewEngine(store Store, remote RemoteService, oracle Oracle, bus *Bus, cfg EngineConfig) *Engine {
	if cfg.RetryCeiling < 1 {
		cfg.RetryCeiling = DefaultRetryCeiling
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyClientWins
	}
	return &Engine{
		store:   store,
		remote:  remote,
		oracle:  oracle,
		bus:     bus,
		checker: NewChecker(cfg.ConflictToleranceMs),
		cfg:     cfg,
	}
}

// Process runs one synchronization pass: lock, drain, group, dispatch,
// bookkeep, release. Offline and lock contention are silent no-ops. Item and
// group failures never escape; only store-level failures return an error.
func (e *Engine) Process(ctx context.Context) (Result, error) {
	var res Result

	if !e.oracle.IsOnline() {
		return res, nil
	}

	if err := e.store.AcquireLock(); err != nil {
		if errors.Is(err, ErrLockHeld) {
			logging.Debug("Sync run skipped, lock held", nil)
			return res, nil
		}
		return res, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to acquire sync lock", err)
	}
	defer func() {
		if err := e.store.ReleaseLock(); err != nil {
			logging.Error("Failed to release sync lock", err)
		}
	}()

	items, err := e.store.List()
	if err != nil {
		return res, apperrors.Wrap(apperrors.ErrDatabase, "failed to list sync queue", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	e.emit(EventSyncStart, map[string]interface{}{"pending": len(items)})

	// Best-effort global FIFO. The store already orders by enqueue time;
	// the stable sort keeps that guarantee independent of the Store impl.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EnqueuedAt < items[j].EnqueuedAt
	})

	groups, ungrouped := Partition(items)

	var fallback []*models.SyncQueueItem
	for _, g := range groups {
		if g.Parent == nil {
			// The composite call needs a parent aggregate; children
			// without one in this snapshot sync per item.
			fallback = append(fallback, g.Members()...)
			continue
		}
		e.processGroup(ctx, g, &res)
	}
	fallback = append(fallback, ungrouped...)

	for _, item := range fallback {
		e.processItem(ctx, item, &res)
	}

	e.emit(EventSyncComplete, map[string]interface{}{
		"synced": res.Synced,
		"failed": res.Failed,
	})
	logging.Info("Sync run completed", map[string]interface{}{
		"synced": res.Synced,
		"failed": res.Failed,
	})
	return res, nil
}

// processGroup dispatches one parent aggregate and its children as a single
// composite remote call, then applies the all-or-nothing bookkeeping.
func (e *Engine) processGroup(ctx context.Context, g *Group, res *Result) {
	members := g.Members()

	if maxRetryCount(members) >= e.cfg.RetryCeiling {
		logging.Debug("Group skipped at retry ceiling", map[string]interface{}{
			"parent_id": g.ParentID,
			"members":   len(members),
		})
		return
	}

	switch e.checkConflict(ctx, g) {
	case conflictProceed:
	case conflictDropLocal:
		ids := memberIDs(members)
		if err := e.store.RemoveBatch(ids); err != nil {
			logging.Error("Failed to drop conflicting group", err,
				map[string]interface{}{"parent_id": g.ParentID})
		}
		return
	case conflictHold:
		return
	}

	batch := e.buildBatch(g)
	result, err := e.callRemote(func() (*RemoteResult, error) {
		return e.remote.SaveWorkout(ctx, batch)
	})

	if reason, failed := failureReason(result, err); failed {
		for _, m := range members {
			e.recordFailure(m, reason)
		}
		res.Failed += len(members)
		logging.Warn("Group sync failed", map[string]interface{}{
			"parent_id": g.ParentID,
			"members":   len(members),
			"reason":    reason,
		})
		return
	}

	// Remote persisted the aggregate; the members must leave the queue
	// together. If removal itself fails the items stay queued and the
	// next run re-upserts them, which the idempotent remote absorbs.
	if err := e.store.RemoveBatch(memberIDs(members)); err != nil {
		logging.Error("Failed to remove synced group from queue", err,
			map[string]interface{}{"parent_id": g.ParentID})
	}
	for _, m := range members {
		e.emit(EventItemSynced, map[string]interface{}{
			"id":   string(m.ID),
			"type": m.EntityType,
		})
	}
	res.Synced += len(members)
}

// processItem dispatches one mutation through the per-entity remote calls.
func (e *Engine) processItem(ctx context.Context, item *models.SyncQueueItem, res *Result) {
	if item.RetryCount >= e.cfg.RetryCeiling {
		logging.Debug("Item skipped at retry ceiling", map[string]interface{}{
			"id": string(item.ID),
		})
		return
	}

	result, err := e.callRemote(func() (*RemoteResult, error) {
		return e.dispatchItem(ctx, item)
	})

	if reason, failed := failureReason(result, err); failed {
		e.recordFailure(item, reason)
		res.Failed++
		return
	}

	if err := e.store.Remove(string(item.ID)); err != nil {
		logging.Error("Failed to remove synced item from queue", err,
			map[string]interface{}{"id": string(item.ID)})
	}
	e.emit(EventItemSynced, map[string]interface{}{
		"id":   string(item.ID),
		"type": item.EntityType,
	})
	res.Synced++
}

// dispatchItem routes one mutation to the matching remote operation.
func (e *Engine) dispatchItem(ctx context.Context, item *models.SyncQueueItem) (*RemoteResult, error) {
	id := string(item.ID)

	switch item.Operation {
	case OperationDelete:
		return e.remote.Delete(ctx, item.EntityType, id)
	case OperationInsert, OperationUpdate:
		payload, err := item.PayloadMap()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrQueuePayload, "payload does not decode", err)
		}
		if item.Operation == OperationInsert {
			return e.remote.Insert(ctx, item.EntityType, id, payload)
		}
		return e.remote.Update(ctx, item.EntityType, id, payload)
	}
	return nil, apperrors.New(apperrors.ErrInvalid,
		fmt.Sprintf("unknown operation %q", item.Operation))
}

// conflictAction is the engine-side verdict after a conflict check.
type conflictAction int

const (
	conflictProceed conflictAction = iota
	conflictDropLocal
	conflictHold
)

// checkConflict compares the parent's locally recorded modification time to
// the remote one. Lookup failures never block the write.
func (e *Engine) checkConflict(ctx context.Context, g *Group) conflictAction {
	payload, err := g.Parent.PayloadMap()
	if err != nil {
		return conflictProceed
	}
	localMs, ok := timestampField(payload, "updated_at")
	if !ok {
		return conflictProceed
	}

	remoteMs, err := e.remote.GetLastModified(ctx, g.Parent.EntityType, g.ParentID)
	if err != nil {
		logging.Warn("Conflict check lookup failed, proceeding", map[string]interface{}{
			"parent_id": g.ParentID,
			"error":     err.Error(),
		})
		return conflictProceed
	}
	if remoteMs == nil || !e.checker.Check(localMs, *remoteMs) {
		return conflictProceed
	}

	ctxFields := map[string]interface{}{
		"parent_id": g.ParentID,
		"local_ms":  localMs,
		"remote_ms": *remoteMs,
		"policy":    string(e.cfg.Policy),
		"code":      string(apperrors.ErrSyncConflict),
	}

	switch e.cfg.Policy {
	case PolicyServerWins:
		logging.Warn("Conflict detected, dropping local mutations", ctxFields)
		return conflictDropLocal
	case PolicyManual:
		logging.Warn("Conflict detected, holding group for review", ctxFields)
		return conflictHold
	default:
		// Last writer wins from the client's perspective: warn and write.
		logging.Warn("Conflict detected, proceeding with client write", ctxFields)
		return conflictProceed
	}
}

// buildBatch assembles the composite payload for one group.
func (e *Engine) buildBatch(g *Group) *WorkoutBatch {
	batch := &WorkoutBatch{
		Children:      make([]map[string]interface{}, 0, len(g.Children)),
		Grandchildren: make([]map[string]interface{}, 0, len(g.Grandchildren)),
	}
	batch.Parent, _ = g.Parent.PayloadMap()
	for _, c := range g.Children {
		payload, _ := c.PayloadMap()
		batch.Children = append(batch.Children, payload)
	}
	for _, gc := range g.Grandchildren {
		payload, _ := gc.PayloadMap()
		batch.Grandchildren = append(batch.Grandchildren, payload)
	}
	return batch
}

// callRemote guards one remote call so a panic inside a client
// implementation cannot abort the rest of the run.
func (e *Engine) callRemote(fn func() (*RemoteResult, error)) (result *RemoteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("remote call panicked: %v", r)
		}
	}()
	return fn()
}

// recordFailure increments retry bookkeeping for one mutation.
func (e *Engine) recordFailure(item *models.SyncQueueItem, reason string) {
	if err := e.store.IncrementRetry(string(item.ID), reason); err != nil {
		logging.Error("Failed to record retry", err,
			map[string]interface{}{"id": string(item.ID)})
	}
}

// emit publishes a lifecycle event when a bus is attached.
func (e *Engine) emit(eventType EventType, data map[string]interface{}) {
	if e.bus != nil {
		e.bus.Emit(eventType, data)
	}
}

// failureReason folds a remote outcome into (reason, failed). Transport
// errors and application rejections are both soft failures.
func failureReason(result *RemoteResult, err error) (string, bool) {
	if err != nil {
		return err.Error(), true
	}
	if result == nil {
		return "remote returned no result", true
	}
	if !result.Success {
		if result.Error != "" {
			return result.Error, true
		}
		return "remote rejected the write", true
	}
	return "", false
}

// maxRetryCount returns the highest retry count across a group's members.
func maxRetryCount(members []*models.SyncQueueItem) int {
	max := 0
	for _, m := range members {
		if m.RetryCount > max {
			max = m.RetryCount
		}
	}
	return max
}

// memberIDs collects the ids of a group's members.
func memberIDs(members []*models.SyncQueueItem) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, string(m.ID))
	}
	return ids
}

// timestampField reads a millisecond timestamp from a decoded JSON payload.
func timestampField(payload map[string]interface{}, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
