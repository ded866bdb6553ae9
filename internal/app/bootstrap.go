package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"momentum_go/internal/domain"
	"momentum_go/internal/execution"
	"momentum_go/internal/infra"
	"momentum_go/internal/infra/bybit"
	"momentum_go/internal/instance"
	"momentum_go/internal/manager"
	"momentum_go/internal/market"
	"momentum_go/internal/storage"
)

// summaryEvery is how many ticks pass between instance summary log lines.
const summaryEvery = 60

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Writer  *storage.Writer
	Client  *bybit.Client
	Stream  *bybit.Stream
	Market  *market.Engine
	Manager *manager.Manager

	signer *bybit.Signer
	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, installs the logger, opens storage and builds the
// exchange adapter, market engine and manager. Nothing is started yet.
func (b *Bootstrap) Initialize() error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(os.Stdout, cfg)
	slog.Info("Bootstrapping", slog.String("app", cfg.App.Name), slog.String("version", cfg.App.Version))

	ws, err := infra.OpenWorkspace()
	if err != nil {
		return err
	}
	unlock, err := ws.Lock()
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath, err := ws.DatabasePath(cfg.Storage.Path)
	if err != nil {
		return err
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	b.Writer = storage.NewWriter(store, 0)
	slog.Info("Storage initialized (WAL-mode)", slog.String("path", dbPath))

	if cfg.HasCredentials() {
		b.signer = bybit.NewSigner(cfg.API.Bybit.APIKey, cfg.API.Bybit.APISecret, cfg.API.Bybit.RecvWindowMs)
	}
	b.Client = bybit.NewClient(cfg.API.Bybit.RestURL, b.signer, infra.NewBybitLimiters())

	mc := cfg.Market
	b.Market = market.NewEngine(market.Config{
		SampleCapacity:  mc.SampleCapacity,
		TurnoverHistory: mc.TurnoverHistory,
		InboxSize:       mc.InboxSize,
		MaxUniverse:     mc.MaxUniverse,
		UniverseRefresh: mc.UniverseRefresh(),
		SafetyReconcile: mc.SafetyReconcile(),
		SubscribeChunk:  mc.SubscribeChunk,
		SubscribeDelay:  mc.SubscribeDelay(),
	}, b.Client, nil)
	b.Stream = bybit.NewStream(cfg.API.Bybit.WSURL, b.Market.Inbox())
	b.Stream.OnReconnect(b.Market.ResetSubscriptions)
	b.Market.AttachStream(b.Stream)

	var orders execution.OrderClient
	if b.Client.CanTrade() {
		orders = b.Client
	}
	b.Manager = manager.New(manager.Options{
		Market:       b.Market,
		Executors:    execution.NewFactory(orders, cfg.Trading.ConfirmLive),
		Sink:         b.Writer,
		Registry:     b.Store,
		TakerFeeRate: cfg.Trading.TakerFeeRate,
		MakerFeeRate: cfg.Trading.MakerFeeRate,
	})
	b.Market.OnTick(b.Manager.HandleTick)
	b.Manager.OnState(summaryLogger())
	return nil
}

// Run starts the stream and market engine, restores persisted instances and
// starts configured bots that are not already running.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Stream.Start(ctx)
	if err := b.Market.Start(ctx); err != nil {
		return fmt.Errorf("failed to start market engine: %w", err)
	}

	restored, err := b.Manager.Restore(ctx)
	if err != nil {
		slog.Error("Instance restore failed", slog.Any("error", err))
	}
	if restored > 0 {
		slog.Info("Instances restored", slog.Int("count", restored))
	}
	b.startConfiguredBots(ctx)
	return nil
}

func (b *Bootstrap) startConfiguredBots(ctx context.Context) {
	running := make(map[string]struct{})
	for _, s := range b.Manager.List() {
		running[s.Name] = struct{}{}
	}
	for _, bot := range b.Config.Bots {
		if _, ok := running[bot.Name]; ok && bot.Name != "" {
			continue
		}
		id, err := b.Manager.Start(ctx, bot)
		if err != nil {
			slog.Error("Failed to start configured bot",
				slog.String("name", bot.Name),
				slog.String("mode", string(bot.WithDefaults().Mode)),
				slog.Any("error", err))
			continue
		}
		slog.Info("Configured bot started", slog.String("name", bot.Name), slog.String("id", id))
	}
}

// Shutdown stops components in reverse order and flushes storage.
func (b *Bootstrap) Shutdown() {
	if b.Market != nil {
		b.Market.Stop()
	}
	if b.Stream != nil {
		b.Stream.Stop()
		if n := b.Stream.Dropped(); n > 0 {
			slog.Warn("Stream dropped messages on full inbox", slog.Uint64("count", n))
		}
	}
	if b.Writer != nil {
		b.Writer.Close()
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
	b.signer.Wipe()
	if b.unlock != nil {
		b.unlock()
	}
}

func summaryLogger() manager.StateHandler {
	ticks := 0
	return func(summaries []instance.Summary) {
		ticks++
		if ticks%summaryEvery != 0 {
			return
		}
		for _, s := range summaries {
			level := slog.LevelDebug
			if s.Mode == domain.ModeLive {
				level = slog.LevelInfo
			}
			slog.Log(context.Background(), level, "Instance summary",
				slog.String("id", s.ID),
				slog.String("name", s.Name),
				slog.Int("pending", s.Pending),
				slog.Int("open", s.Open),
				slog.Int("in_flight", s.InFlight),
				slog.Int("trades", s.Stats.Trades),
				slog.Float64("net_pnl", s.Stats.NetPnL))
		}
	}
}
