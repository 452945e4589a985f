package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/sentinel/internal/simulate"
	"github.com/okian/sentinel/pkg/logger"
)

const runTimeout = 10 * time.Minute

func main() {
	d := simulate.DefaultConfig()
	var (
		baseURL     = flag.String("url", d.BaseURL, "Base URL of the service")
		secret      = flag.String("secret", os.Getenv("SENTINEL_TOKEN__SECRET"), "Shared secret of the service")
		players     = flag.Int("players", d.Players, "Number of simulated players")
		teleporters = flag.Int("teleporters", d.Teleporters, "Players that jump across the map")
		spammers    = flag.Int("spammers", d.Spammers, "Players that flood one event")
		firstID     = flag.Int("first-id", d.FirstPlayerID, "Player id of the first simulated player")
		rounds      = flag.Int("rounds", d.Rounds, "Rounds to play")
		interval    = flag.Duration("interval", d.RoundInterval, "Pause between rounds")
		burst       = flag.Int("burst", d.SpamBurst, "Events a spammer sends per round")
		settle      = flag.Duration("settle", d.Settle, "Wait before reading results")
		workers     = flag.Int("workers", d.Workers, "Concurrent request workers")
		timeout     = flag.Duration("timeout", d.Timeout, "Per-request timeout")
		verbose     = flag.Bool("verbose", false, "Log every player's result")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:       *baseURL,
		Secret:        *secret,
		Players:       *players,
		Teleporters:   *teleporters,
		Spammers:      *spammers,
		FirstPlayerID: *firstID,
		Rounds:        *rounds,
		RoundInterval: *interval,
		SpamBurst:     *burst,
		Settle:        *settle,
		Workers:       *workers,
		Timeout:       *timeout,
		Verbose:       *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
