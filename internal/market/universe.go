package market

import (
	"context"
	"log/slog"
	"time"

	"momentum_go/internal/domain"
)

func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Universe refresh panic recovered", slog.Any("panic", r))
		}
	}()

	universe := time.NewTicker(e.cfg.UniverseRefresh)
	defer universe.Stop()
	stats := time.NewTicker(e.cfg.SafetyReconcile)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-universe.C:
			e.refreshUniverse(ctx)
		case <-stats.C:
			e.seedStats(ctx)
		}
	}
}

// refreshUniverse replaces the instrument set. On failure the previous
// universe is kept.
func (e *Engine) refreshUniverse(ctx context.Context) {
	if e.source == nil {
		return
	}
	list, err := e.source.FetchInstruments(ctx)
	if err != nil {
		slog.Warn("Universe refresh failed, keeping previous", slog.Any("error", err))
		return
	}
	if len(list) == 0 {
		slog.Warn("Universe refresh returned no instruments, keeping previous")
		return
	}
	e.SetInstruments(list)
	slog.Info("Universe refreshed", slog.Int("instruments", len(list)))
	e.requestReconcile()
}

// SetInstruments replaces the universe and drops history of delisted symbols
// that are not pinned.
func (e *Engine) SetInstruments(list []domain.Instrument) {
	next := make(map[string]domain.Instrument, len(list))
	for _, in := range list {
		next[in.Symbol] = in
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.instruments = next

	pinned := make(map[string]struct{}, len(e.policy.Pinned))
	for _, s := range e.policy.Pinned {
		pinned[s] = struct{}{}
	}
	for sym := range e.histories {
		if _, ok := next[sym]; ok {
			continue
		}
		if _, ok := pinned[sym]; ok {
			continue
		}
		delete(e.histories, sym)
		delete(e.tickers, sym)
	}
}

// seedStats stages REST ticker snapshots so eligibility can rank instruments
// that are not subscribed yet.
func (e *Engine) seedStats(ctx context.Context) {
	if e.source == nil {
		return
	}
	updates, err := e.source.FetchTickers(ctx)
	if err != nil {
		slog.Warn("Ticker stats refresh failed", slog.Any("error", err))
		return
	}
	for i := range updates {
		u := updates[i]
		u.Seed = true
		select {
		case e.inbox <- &u:
		case <-ctx.Done():
			return
		}
	}
}
