package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"momentum_go/internal/domain"
	"momentum_go/internal/execution"
	"momentum_go/internal/instance"
	"momentum_go/internal/market"
	"momentum_go/internal/storage"
)

// Market is the market data engine as seen by the manager.
type Market interface {
	instance.MarketView
	EligibleSymbols(turnoverMin, volMin float64) []string
	ApplyPolicy(p market.SelectionPolicy)
}

// Executors hands out an executor per bot mode.
type Executors interface {
	ForMode(mode domain.Mode) (execution.Executor, error)
}

// Registry persists instance configurations across restarts.
type Registry interface {
	PutInstance(ctx context.Context, rec storage.InstanceRecord, ts int64) error
	DeleteInstance(ctx context.Context, id string) error
	ListInstances(ctx context.Context) ([]storage.InstanceRecord, []string, error)
}

// StateHandler receives the summaries of all running instances after each tick.
type StateHandler func(summaries []instance.Summary)

// Options builds a Manager. Registry and Sink are optional.
type Options struct {
	Market       Market
	Executors    Executors
	Sink         domain.Sink
	Registry     Registry
	TakerFeeRate float64
	MakerFeeRate float64
	Now          func() time.Time
}

type entry struct {
	inst      *instance.Instance
	createdAt time.Time
}

// Manager owns the running instances, fans ticks out to them in creation
// order and keeps the market selection policy in line with their needs.
type Manager struct {
	market    Market
	executors Executors
	sink      domain.Sink
	registry  Registry
	taker     float64
	maker     float64
	now       func() time.Time

	mu        sync.Mutex
	instances map[string]*entry
	order     []string
	policy    market.SelectionPolicy
	activeKey string

	handlersMu sync.Mutex
	handlers   []StateHandler
}

// New creates a manager.
func New(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	execs := opts.Executors
	if execs == nil {
		execs = execution.NewFactory(nil, false)
	}
	return &Manager{
		market:    opts.Market,
		executors: execs,
		sink:      opts.Sink,
		registry:  opts.Registry,
		taker:     opts.TakerFeeRate,
		maker:     opts.MakerFeeRate,
		now:       now,
		instances: make(map[string]*entry),
	}
}

// Start validates cfg, runs live preflight, and registers a new instance.
// ConfigError and PreflightError are returned before anything is created.
func (m *Manager) Start(ctx context.Context, cfg domain.BotConfig) (string, error) {
	return m.start(ctx, uuid.NewString(), cfg, m.now(), true)
}

func (m *Manager) start(ctx context.Context, id string, cfg domain.BotConfig, createdAt time.Time, persist bool) (string, error) {
	if cfg.TakerFeeRate == 0 {
		cfg.TakerFeeRate = m.taker
	}
	if cfg.MakerFeeRate == 0 {
		cfg.MakerFeeRate = m.maker
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	exec, err := m.executors.ForMode(cfg.Mode)
	if err != nil {
		return "", &domain.PreflightError{Step: "executor", Err: err}
	}
	if cfg.Mode == domain.ModeLive {
		if err := m.preflight(ctx, exec, cfg); err != nil {
			return "", err
		}
	}

	inst, err := instance.New(instance.Options{
		ID:       id,
		Config:   cfg,
		Market:   m.market,
		Executor: exec,
		Sink:     m.sink,
		Now:      m.now,
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, dup := m.instances[id]; dup {
		m.mu.Unlock()
		inst.Stop()
		return "", fmt.Errorf("instance %s already running", id)
	}
	m.instances[id] = &entry{inst: inst, createdAt: createdAt}
	m.order = append(m.order, id)
	m.recomputePolicyLocked()
	m.mu.Unlock()

	if persist {
		m.persist(ctx, id, cfg, createdAt, false)
	}
	slog.Info("Instance started",
		slog.String("id", id),
		slog.String("name", cfg.Name),
		slog.String("mode", string(cfg.Mode)),
		slog.String("symbol", cfg.Symbol))
	return id, nil
}

// preflight checks hedge mode always and isolated margin for a pinned symbol.
// Scanning instruments get isolated margin set on their first entry.
func (m *Manager) preflight(ctx context.Context, exec execution.Executor, cfg domain.BotConfig) error {
	if err := exec.EnsureHedgeMode(ctx); err != nil {
		return &domain.PreflightError{Step: "hedge_mode", Err: err}
	}
	if cfg.Symbol == "" {
		return nil
	}
	if _, ok := m.market.Instrument(cfg.Symbol); !ok {
		return &domain.PreflightError{Step: "instrument", Err: fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, cfg.Symbol)}
	}
	if err := exec.EnsureIsolatedPreflight(ctx, cfg.Symbol, cfg.Leverage); err != nil {
		return &domain.PreflightError{Step: "isolated_margin", Err: err}
	}
	return nil
}

// Stop removes a running instance. Its record is kept and marked stopped.
func (m *Manager) Stop(ctx context.Context, id string) error {
	e, err := m.remove(id)
	if err != nil {
		return err
	}
	m.persist(ctx, id, e.inst.Config(), e.createdAt, true)
	return nil
}

// Delete removes an instance, running or stopped, and its record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	_, err := m.remove(id)
	if err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
		return err
	}
	if m.registry == nil {
		return err
	}
	if derr := m.registry.DeleteInstance(ctx, id); derr != nil {
		return derr
	}
	return nil
}

func (m *Manager) remove(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, id)
	}
	e.inst.Stop()
	delete(m.instances, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.recomputePolicyLocked()
	slog.Info("Instance stopped", slog.String("id", id), slog.String("name", e.inst.Config().Name))
	return e, nil
}

func (m *Manager) persist(ctx context.Context, id string, cfg domain.BotConfig, createdAt time.Time, stopped bool) {
	if m.registry == nil {
		return
	}
	rec := storage.InstanceRecord{ID: id, Config: cfg, CreatedAtMs: createdAt.UnixMilli(), Stopped: stopped}
	if err := m.registry.PutInstance(ctx, rec, m.now().UnixMilli()); err != nil {
		slog.Warn("Failed to persist instance", slog.String("id", id), slog.Any("error", err))
	}
}

// Restore restarts every persisted instance not marked stopped. Records that
// fail validation or preflight are logged and skipped.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.registry == nil {
		return 0, nil
	}
	recs, bad, err := m.registry.ListInstances(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}
	for _, id := range bad {
		slog.Warn("Skipping unreadable instance record", slog.String("id", id))
	}

	restored := 0
	for _, rec := range recs {
		if rec.Stopped {
			continue
		}
		if _, err := m.start(ctx, rec.ID, rec.Config, time.UnixMilli(rec.CreatedAtMs), false); err != nil {
			slog.Error("Failed to restore instance",
				slog.String("id", rec.ID),
				slog.String("name", rec.Config.Name),
				slog.Any("error", err))
			continue
		}
		restored++
	}
	return restored, nil
}

// List returns summaries of running instances in creation order.
func (m *Manager) List() []instance.Summary {
	m.mu.Lock()
	entries := m.entriesLocked()
	m.mu.Unlock()

	out := make([]instance.Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.inst.Summary())
	}
	return out
}

// State returns the full state of one instance.
func (m *Manager) State(id string) (instance.State, error) {
	inst, err := m.get(id)
	if err != nil {
		return instance.State{}, err
	}
	return inst.State(), nil
}

// CancelEntry clears a pending trigger of one instance.
func (m *Manager) CancelEntry(id, symbol string) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	return inst.CancelEntry(strings.ToUpper(strings.TrimSpace(symbol)))
}

// OnState registers a handler fired after every tick.
func (m *Manager) OnState(h StateHandler) {
	m.handlersMu.Lock()
	m.handlers = append(m.handlers, h)
	m.handlersMu.Unlock()
}

// Policy returns the selection policy last applied to the market.
func (m *Manager) Policy() market.SelectionPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

func (m *Manager) get(id string) (*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, id)
	}
	return e.inst, nil
}

func (m *Manager) entriesLocked() []*entry {
	out := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id])
	}
	return out
}

// HandleTick evaluates every instance sequentially for one market tick.
// Lifecycle calls wait until the tick is done.
func (m *Manager) HandleTick(t market.Tick) {
	m.mu.Lock()
	entries := m.entriesLocked()
	eligible := make(map[[2]float64][]string)
	for _, e := range entries {
		cfg := e.inst.Config()
		e.inst.OnTick(t.Time, m.symbolsFor(cfg, eligible))
	}
	if m.activeChangedLocked() {
		m.recomputePolicyLocked()
	}
	m.mu.Unlock()

	m.handlersMu.Lock()
	handlers := make([]StateHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlersMu.Unlock()
	if len(handlers) == 0 {
		return
	}

	summaries := make([]instance.Summary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, e.inst.Summary())
	}
	for _, h := range handlers {
		h(summaries)
	}
}

// symbolsFor is the pinned symbol, or the eligible set under the instance's
// own thresholds truncated to its cap.
func (m *Manager) symbolsFor(cfg domain.BotConfig, cache map[[2]float64][]string) []string {
	if cfg.Symbol != "" {
		return []string{cfg.Symbol}
	}
	key := [2]float64{cfg.TurnoverMinUSDT, cfg.VolMinPct}
	syms, ok := cache[key]
	if !ok {
		syms = m.market.EligibleSymbols(cfg.TurnoverMinUSDT, cfg.VolMinPct)
		cache[key] = syms
	}
	if len(syms) > cfg.UniverseCap {
		syms = syms[:cfg.UniverseCap]
	}
	return syms
}

func (m *Manager) activeChangedLocked() bool {
	return m.activeKeyLocked() != m.activeKey
}

// activeKeyLocked fingerprints the symbols instances hold work on.
func (m *Manager) activeKeyLocked() string {
	var all []string
	for _, id := range m.order {
		all = append(all, m.instances[id].inst.ActiveSymbols()...)
	}
	sort.Strings(all)
	return strings.Join(all, ",")
}

// recomputePolicyLocked folds every instance's requirement and applies the
// result when it differs from the current policy.
func (m *Manager) recomputePolicyLocked() {
	reqs := make([]market.Requirement, 0, len(m.order))
	for _, id := range m.order {
		inst := m.instances[id].inst
		reqs = append(reqs, requirementOf(inst.Config(), inst.ActiveSymbols()))
	}
	p := market.AggregatePolicy(reqs)
	m.activeKey = m.activeKeyLocked()
	if market.PolicyEqual(p, m.policy) {
		return
	}
	m.policy = p
	if m.market != nil {
		m.market.ApplyPolicy(p)
	}
	slog.Info("Selection policy updated",
		slog.Int("cap", p.Cap),
		slog.Float64("turnover_min", p.TurnoverMin),
		slog.Float64("vol_min", p.VolMin),
		slog.Any("intervals", p.Intervals),
		slog.Int("pinned", len(p.Pinned)))
}

func requirementOf(cfg domain.BotConfig, active []string) market.Requirement {
	r := market.Requirement{
		Cap:         cfg.UniverseCap,
		TurnoverMin: cfg.TurnoverMinUSDT,
		VolMin:      cfg.VolMinPct,
		Pinned:      active,
		Scan:        cfg.Symbol == "",
	}
	if cfg.Symbol != "" {
		r.Pinned = append([]string{cfg.Symbol}, active...)
	}
	if cfg.TurnoverSpikePct > 0 || cfg.TurnoverFloorUSDT > 0 {
		r.Interval = cfg.TurnoverInterval
	}
	return r
}

