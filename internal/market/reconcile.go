package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// requestReconcile schedules a reconciliation without blocking the caller.
func (e *Engine) requestReconcile() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// ResetSubscriptions forgets the subscribed set after a reconnect so the
// next reconciliation re-subscribes everything.
func (e *Engine) ResetSubscriptions() {
	e.subMu.Lock()
	e.subscribed = make(map[string]struct{})
	e.subMu.Unlock()
	e.requestReconcile()
}

// SubscribedCount returns the number of topics believed subscribed.
func (e *Engine) SubscribedCount() int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subscribed)
}

func (e *Engine) reconcileLoop(ctx context.Context) {
	defer e.wg.Done()

	safety := time.NewTicker(e.cfg.SafetyReconcile)
	defer safety.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
		case <-safety.C:
		}
		if err := e.Reconcile(ctx); err != nil {
			slog.Warn("Subscription reconcile failed", slog.Any("error", err))
		}
	}
}

// DesiredTopics returns the ticker and kline topics implied by the policy.
func (e *Engine) DesiredTopics() map[string]struct{} {
	return DesiredTopics(e.DesiredSymbols(), e.Policy().Intervals)
}

// Reconcile diffs desired topics against the subscribed set and sends
// unsubscribe/subscribe requests in chunks. Bookkeeping is only updated
// after a chunk was sent successfully.
func (e *Engine) Reconcile(ctx context.Context) error {
	if e.stream == nil {
		return nil
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()

	add, remove := diffTopics(e.DesiredTopics(), e.subscribed)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	slog.Info("Reconciling subscriptions", slog.Int("add", len(add)), slog.Int("remove", len(remove)))

	for _, c := range chunk(remove, e.cfg.SubscribeChunk) {
		if err := e.stream.Unsubscribe(ctx, c); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		for _, t := range c {
			delete(e.subscribed, t)
		}
		if err := e.pause(ctx); err != nil {
			return err
		}
	}
	for _, c := range chunk(add, e.cfg.SubscribeChunk) {
		if err := e.stream.Subscribe(ctx, c); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		for _, t := range c {
			e.subscribed[t] = struct{}{}
		}
		if err := e.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pause(ctx context.Context) error {
	if e.cfg.SubscribeDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.SubscribeDelay):
		return nil
	}
}
