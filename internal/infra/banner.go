package infra

import (
	"fmt"
	"io"

	"momentum_go/internal/domain"
)

// ANSI Color Codes
const (
	ColorReset = "\033[0m"
	ColorRed   = "\033[31m"
	ColorCyan  = "\033[36m"
)

// PrintBanner writes the startup banner. Any live bot turns it red.
func PrintBanner(w io.Writer, cfg *Config) {
	paper, live := 0, 0
	for _, b := range cfg.Bots {
		if b.WithDefaults().Mode == domain.ModeLive {
			live++
		} else {
			paper++
		}
	}

	color := ColorCyan
	if live > 0 {
		color = ColorRed
	}

	line := func(format string, args ...any) {
		fmt.Fprintf(w, "%s"+format+"%s\n", append(append([]any{color}, args...), ColorReset)...)
	}

	fmt.Fprintln(w)
	line("###########################################################")
	line("#   %-53s #", cfg.App.Name+" momentum engine")
	line("#   VERSION: %-44s #", cfg.App.Version)
	line("#   BOTS:    %-44s #", fmt.Sprintf("%d paper / %d live", paper, live))
	if live > 0 {
		line("#   %-53s #", "WARNING: LIVE BOTS TRADE REAL MONEY")
	}
	line("###########################################################")
	fmt.Fprintln(w)
}
