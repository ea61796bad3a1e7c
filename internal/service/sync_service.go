package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// KeyLastSyncTime holds the RFC 3339 time of the last completed sync run.
const KeyLastSyncTime = "lastSyncTime"

const interruptedError = "interrupted"

// SyncReport summarises one sync run.
type SyncReport struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Processed  int       `json:"processed"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	// Deferred counts items left pending because the run was cancelled.
	Deferred int `json:"deferred"`
}

type actionHandler func(ctx context.Context, item *model.QueueItem) error

// SyncEngine replays queued actions against the server, one at a time in
// enqueue order.
type SyncEngine struct {
	queue    *OfflineQueue
	cache    repository.EntityCache
	store    repository.PersistentStore
	remote   RemoteAPI
	logger   *zap.Logger
	now      func() time.Time
	running  atomic.Bool
	handlers map[model.ActionKind]actionHandler
}

func NewSyncEngine(
	queue *OfflineQueue,
	cache repository.EntityCache,
	store repository.PersistentStore,
	remote RemoteAPI,
	logger *zap.Logger,
) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &SyncEngine{
		queue:  queue,
		cache:  cache,
		store:  store,
		remote: remote,
		logger: logger,
		now:    time.Now,
	}
	e.handlers = map[model.ActionKind]actionHandler{
		model.ActionCreateOrder:       e.replayCreateOrder,
		model.ActionProcessPayment:    e.replayPayment,
		model.ActionUpdateOrderStatus: e.replayOrderStatus,
		model.ActionCancelOrder:       e.replayCancelOrder,
	}
	return e
}

// Running reports whether a sync run is in flight.
func (e *SyncEngine) Running() bool { return e.running.Load() }

// SyncWithServer drains pending items. A call made while another run is in
// flight returns an empty report and touches nothing; use Running to tell
// the two apart.
//
// An action that fails for any reason, an unreachable server included, is
// marked failed and the run moves on to the next item. Only cancelling ctx
// stops the run: the current item goes back to pending and the rest stay
// pending.
func (e *SyncEngine) SyncWithServer(ctx context.Context) (SyncReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("sync already running, skipped")
		return SyncReport{}, nil
	}
	defer e.running.Store(false)

	report := SyncReport{StartedAt: e.now()}
	items, err := e.queue.Drain(ctx, model.QueueStatusPending)
	if err != nil {
		return report, fmt.Errorf("list pending actions: %w", err)
	}
	e.logger.Info("sync started", zap.Int("pending", len(items)))

	var stopErr error
	for i := range items {
		item := &items[i]
		if err := ctx.Err(); err != nil {
			stopErr = err
			report.Deferred = len(items) - i
			break
		}
		if err := e.queue.transition(ctx, item.ID, model.QueueStatusProcessing, ""); err != nil {
			return report, err
		}
		report.Processed++

		err := e.dispatch(apiclient.WithIdempotencyKey(ctx, item.IdempotencyKey), item)
		// bookkeeping outlives a cancelled ctx so the item never sticks in processing
		bctx := context.WithoutCancel(ctx)
		switch {
		case err == nil:
			if err := e.queue.transition(bctx, item.ID, model.QueueStatusCompleted, ""); err != nil {
				return report, err
			}
			report.Completed++
		case ctx.Err() != nil:
			if err := e.queue.transition(bctx, item.ID, model.QueueStatusPending, ""); err != nil {
				return report, err
			}
			stopErr = ctx.Err()
			report.Deferred = len(items) - i
		default:
			e.logger.Warn("queued action failed",
				zap.Uint("id", item.ID),
				zap.String("type", string(item.Type)),
				zap.Bool("unreachable", apiclient.IsNetworkError(err)),
				zap.Error(err),
			)
			if err := e.queue.transition(bctx, item.ID, model.QueueStatusFailed, err.Error()); err != nil {
				return report, err
			}
			report.Failed++
		}
		e.queue.publishPending(bctx)
		if stopErr != nil {
			break
		}
	}

	report.FinishedAt = e.now()
	if stopErr != nil {
		e.logger.Warn("sync stopped early",
			zap.Int("completed", report.Completed),
			zap.Int("deferred", report.Deferred),
			zap.Error(stopErr),
		)
		return report, fmt.Errorf("sync cancelled: %w", stopErr)
	}

	if err := e.store.SetString(ctx, KeyLastSyncTime, report.FinishedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return report, fmt.Errorf("record last sync time: %w", err)
	}
	e.queue.publishPending(ctx)
	e.logger.Info("sync finished",
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (e *SyncEngine) dispatch(ctx context.Context, item *model.QueueItem) error {
	handler, ok := e.handlers[item.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, item.Type)
	}
	return handler(ctx, item)
}

// LastSyncTime returns the zero time when no run has completed yet.
func (e *SyncEngine) LastSyncTime(ctx context.Context) (time.Time, error) {
	raw, err := e.store.GetString(ctx, KeyLastSyncTime)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// Retry puts a failed item back in the pending state for the next run.
func (e *SyncEngine) Retry(ctx context.Context, id uint) error {
	item, err := e.queue.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != model.QueueStatusFailed {
		return fmt.Errorf("%w: item %d is %s", ErrItemNotFailed, id, item.Status)
	}
	if err := e.queue.transition(ctx, id, model.QueueStatusPending, ""); err != nil {
		return err
	}
	e.logger.Info("queued action retried", zap.Uint("id", id))
	e.queue.publishPending(ctx)
	return nil
}

// RetryFailed puts every failed item back in the pending state.
func (e *SyncEngine) RetryFailed(ctx context.Context) (int64, error) {
	n, err := e.queue.repo.TransitionAll(ctx, model.QueueStatusFailed, model.QueueStatusPending, "")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("failed actions retried", zap.Int64("count", n))
		e.queue.publishPending(ctx)
	}
	return n, nil
}

// RecoverInterrupted fails items a killed process left in processing.
// Their outcome on the server is unknown, so they wait for a manual retry.
func (e *SyncEngine) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := e.queue.repo.TransitionAll(ctx, model.QueueStatusProcessing, model.QueueStatusFailed, interruptedError)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted actions: %w", err)
	}
	if n > 0 {
		e.logger.Warn("actions interrupted by a previous shutdown", zap.Int64("count", n))
	}
	return n, nil
}

func decodePayload(item *model.QueueItem, out any) error {
	if err := json.Unmarshal(item.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", item.Type, err)
	}
	return nil
}

// resolveOrderID maps a local order id to the id the server knows.
func (e *SyncEngine) resolveOrderID(ctx context.Context, id string) (string, error) {
	if !model.IsOfflineID(id) {
		return id, nil
	}
	order, err := e.cache.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return "", err
	}
	if order.ServerOrderID == "" {
		return "", fmt.Errorf("%w: %s", ErrOrderNotSynced, id)
	}
	return order.ServerOrderID, nil
}

func (e *SyncEngine) replayCreateOrder(ctx context.Context, item *model.QueueItem) error {
	var p CreateOrderPayload
	if err := decodePayload(item, &p); err != nil {
		return err
	}
	created, err := e.remote.CreateOrder(ctx, apiclient.CreateOrderRequest{
		ClientOrderID: p.OrderID,
		CustomerID:    p.CustomerID,
		TerminalID:    p.TerminalID,
		Items:         p.Items,
		PaymentMethod: p.PaymentMethod,
	})
	if err != nil {
		return err
	}

	err = e.cache.MarkOrderSynced(ctx, p.OrderID, created.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		// the local copy is gone, keep the server's instead
		created.Synced = true
		return e.cache.StoreOrders(ctx, []model.Order{*created}, repository.StoreModeUpsert)
	}
	if err != nil {
		return fmt.Errorf("mark order %s synced: %w", p.OrderID, err)
	}
	e.logger.Info("offline order synced", zap.String("local_id", p.OrderID), zap.String("server_id", created.OrderID))
	return nil
}

func (e *SyncEngine) replayPayment(ctx context.Context, item *model.QueueItem) error {
	var p PaymentPayload
	if err := decodePayload(item, &p); err != nil {
		return err
	}
	remoteID, err := e.resolveOrderID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	_, err = e.remote.SubmitOfflinePayment(ctx, apiclient.OfflinePayment{
		PaymentRequest: apiclient.PaymentRequest{
			OrderID:   remoteID,
			Amount:    p.Amount,
			Method:    p.Method,
			Reference: p.Reference,
		},
		CapturedAt: p.CapturedAt,
	})
	if err != nil {
		return err
	}
	return e.patchLocalStatus(ctx, p.OrderID, model.OrderStatusPaid)
}

func (e *SyncEngine) replayOrderStatus(ctx context.Context, item *model.QueueItem) error {
	var p OrderStatusPayload
	if err := decodePayload(item, &p); err != nil {
		return err
	}
	remoteID, err := e.resolveOrderID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if _, err := e.remote.UpdateOrderStatus(ctx, remoteID, p.Status); err != nil {
		return err
	}
	return e.patchLocalStatus(ctx, p.OrderID, p.Status)
}

func (e *SyncEngine) replayCancelOrder(ctx context.Context, item *model.QueueItem) error {
	var p CancelOrderPayload
	if err := decodePayload(item, &p); err != nil {
		return err
	}
	remoteID, err := e.resolveOrderID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if _, err := e.remote.CancelOrder(ctx, remoteID, p.Reason); err != nil {
		return err
	}
	return e.patchLocalStatus(ctx, p.OrderID, model.OrderStatusCancelled)
}

func (e *SyncEngine) patchLocalStatus(ctx context.Context, id string, status model.OrderStatus) error {
	err := e.cache.UpdateOrderStatus(ctx, id, status)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("update cached order %s: %w", id, err)
	}
	return nil
}
