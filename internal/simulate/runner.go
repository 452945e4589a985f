package simulate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sentinel/pkg/logger"
)

type counters struct {
	connected    atomic.Int64
	events       atomic.Int64
	blocked      atomic.Int64
	failed       atomic.Int64
	disconnected atomic.Int64
}

// Run executes a full simulation: connect, play the rounds, read back every
// session, verify, then disconnect everyone.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Secret, cfg.Timeout)
	players := Roster(cfg)
	var c counters

	log.Info(ctx, "starting simulation",
		logger.String("url", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("teleporters", cfg.Teleporters),
		logger.Int("spammers", cfg.Spammers),
		logger.Int("rounds", cfg.Rounds),
	)

	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		connectErr error
	)
	forEach(ctx, cfg.Workers, players, func(ctx context.Context, p Player) {
		if _, err := client.Connect(ctx, p.ID); err != nil {
			mu.Lock()
			if connectErr == nil {
				connectErr = err
			}
			mu.Unlock()
			c.failed.Add(1)
			return
		}
		c.connected.Add(1)
	})
	if err := connectErr; err != nil {
		disconnectAll(ctx, client, cfg, players, &c)
		return nil, fmt.Errorf("connect: %w", err)
	}

	for round := range cfg.Rounds {
		if err := playRound(ctx, client, cfg, players, round, &c, log); err != nil {
			disconnectAll(ctx, client, cfg, players, &c)
			return nil, err
		}
		stats.StatesPushed += len(players)
		if !sleep(ctx, cfg.RoundInterval) {
			break
		}
	}
	sleep(ctx, cfg.Settle)

	outcomes := make([]Outcome, len(players))
	forEach(ctx, cfg.Workers, players, func(ctx context.Context, p Player) {
		sess, err := client.Session(ctx, p.ID)
		if err != nil {
			c.failed.Add(1)
			log.Warn(ctx, "session read failed", logger.PlayerID(p.ID), logger.Error(err))
		}
		outcomes[p.ID-cfg.FirstPlayerID] = Outcome{Player: p, Session: sess}
	})
	disconnectAll(ctx, client, cfg, players, &c)

	stats.Connected = int(c.connected.Load())
	stats.EventsSent = int(c.events.Load())
	stats.EventsBlocked = int(c.blocked.Load())
	stats.RequestsFailed = int(c.failed.Load())
	stats.Disconnected = int(c.disconnected.Load())
	stats.Flagged = Flagged(outcomes)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report(ctx, log, stats)

	if cfg.Verbose {
		for _, o := range outcomes {
			log.Info(ctx, "player result",
				logger.PlayerID(o.Player.ID),
				logger.String("role", string(o.Player.Role)),
				logger.Float64("trust", o.Session.TrustScore),
				logger.String("enforced", o.Session.Enforced),
			)
		}
	}
	return stats, Verify(outcomes)
}

func playRound(ctx context.Context, client *Client, cfg *Config, players []Player, round int, c *counters, log logger.Logger) error {
	observed := time.Now().UnixMilli()
	states := make([]StateEntry, len(players))
	for i, p := range players {
		states[i] = StateEntry{PlayerID: p.ID, State: p.StateAt(round), ObservedAt: observed}
	}
	if err := client.PushStates(ctx, states); err != nil {
		return fmt.Errorf("round %d: push states: %w", round, err)
	}

	forEach(ctx, cfg.Workers, players, func(ctx context.Context, p Player) {
		for _, ev := range p.EventsAt(round, cfg.SpamBurst) {
			tok, err := client.Token(ctx, p.ID)
			if err != nil {
				c.failed.Add(1)
				log.Debug(ctx, "token request failed", logger.PlayerID(p.ID), logger.Error(err))
				return
			}
			ok, err := client.Event(ctx, p.ID, tok, ev, spamSource)
			if err != nil {
				c.failed.Add(1)
				log.Debug(ctx, "event rejected", logger.PlayerID(p.ID), logger.Error(err))
				continue
			}
			c.events.Add(1)
			if !ok {
				c.blocked.Add(1)
			}
		}
	})
	log.Debug(ctx, "round complete", logger.Int("round", round))
	return nil
}

func disconnectAll(ctx context.Context, client *Client, cfg *Config, players []Player, c *counters) {
	forEach(context.WithoutCancel(ctx), cfg.Workers, players, func(ctx context.Context, p Player) {
		if err := client.Disconnect(ctx, p.ID); err == nil {
			c.disconnected.Add(1)
		}
	})
}

// forEach runs fn for every player on a fixed set of workers.
func forEach(ctx context.Context, workers int, players []Player, fn func(context.Context, Player)) {
	ch := make(chan Player, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range ch {
				if ctx.Err() != nil {
					continue
				}
				fn(ctx, p)
			}
		}()
	}
	for _, p := range players {
		select {
		case ch <- p:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(ch)
	wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func report(ctx context.Context, log logger.Logger, s *Stats) {
	var eventsPerSecond float64
	if s.Duration > 0 {
		eventsPerSecond = float64(s.EventsSent) / s.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("connected", s.Connected),
		logger.Int("states_pushed", s.StatesPushed),
		logger.Int("events_sent", s.EventsSent),
		logger.Int("events_blocked", s.EventsBlocked),
		logger.Int("requests_failed", s.RequestsFailed),
		logger.Int("flagged", s.Flagged),
		logger.Int("disconnected", s.Disconnected),
		logger.Duration("duration", s.Duration),
		logger.Float64("events_per_second", eventsPerSecond),
	)
}
