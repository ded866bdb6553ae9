package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"momentum_go/internal/domain"
)

// ErrLiveNotConfirmed guards against starting live bots by accident.
var ErrLiveNotConfirmed = errors.New("live trading requires trading.confirm_live or CONFIRM_REAL_MONEY=true")

// Factory hands out executors by bot mode. Live bots share one executor.
type Factory struct {
	client      OrderClient
	confirmLive bool

	once sync.Once
	live *LiveExecution
}

// NewFactory creates a factory. client may be nil when no credentials exist.
func NewFactory(client OrderClient, confirmLive bool) *Factory {
	return &Factory{client: client, confirmLive: confirmLive}
}

// ForMode returns the executor for mode.
func (f *Factory) ForMode(mode domain.Mode) (Executor, error) {
	switch mode {
	case domain.ModePaper:
		return NewPaperExecution(), nil
	case domain.ModeLive:
		if !f.confirmLive {
			return nil, ErrLiveNotConfirmed
		}
		if f.client == nil {
			return nil, fmt.Errorf("live trading requires exchange credentials")
		}
		f.once.Do(func() {
			slog.Warn("Connecting live execution (REAL MONEY)")
			f.live = NewLiveExecution(f.client, nil)
		})
		return f.live, nil
	default:
		return nil, fmt.Errorf("unknown execution mode: %s", mode)
	}
}
