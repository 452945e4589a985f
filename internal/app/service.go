package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/okian/sentinel/internal/adapters/alert"
	"github.com/okian/sentinel/internal/adapters/enforcement"
	"github.com/okian/sentinel/internal/adapters/gamestate"
	"github.com/okian/sentinel/internal/adapters/http/api"
	"github.com/okian/sentinel/internal/adapters/http/swagger"
	eventqueue "github.com/okian/sentinel/internal/adapters/mq/queue"
	workerpool "github.com/okian/sentinel/internal/adapters/mq/worker"
	"github.com/okian/sentinel/internal/adapters/repository"
	"github.com/okian/sentinel/internal/config"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/netmonitor"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/internal/domain/statehistory"
	"github.com/okian/sentinel/internal/domain/token"
	"github.com/okian/sentinel/internal/domain/trust"
	"github.com/okian/sentinel/internal/scheduler"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Service owns every component of a running engine.
type Service struct {
	cfg    *config.Config
	now    func() time.Time
	log    logger.Logger
	engine *Engine

	loop   *scheduler.Loop
	queue  *eventqueue.InMemoryQueue
	pool   *workerpool.Pool
	hub    *alert.Hub
	server *http.Server

	store          repository.Store
	enforcer       enforcement.Enforcer
	raycaster      trust.Raycaster
	extraNotifiers []alert.Notifier
	closers        []func() error
}

// New builds a Service from cfg. It fails when the token secret is unusable
// or a configured collaborator cannot be reached.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("app")
	}

	tokens, err := token.New(cfg.Token.Secret,
		token.WithValidityWindow(config.Seconds(cfg.Token.ValidityWindowSec)),
		token.WithFutureSkew(config.Seconds(cfg.Token.FutureSkewSec)),
		token.WithReplayBuffer(config.Seconds(cfg.Token.ReplayBufferSec)),
		token.WithClock(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.Dispatch.QueueSize))
	s.pool = workerpool.NewPool(cfg.Dispatch.Workers, s.queue)
	s.loop = scheduler.New()

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}
	if err := s.openEnforcer(ctx); err != nil {
		s.Close()
		return nil, err
	}
	notifier := s.notifiers()

	cache := gamestate.NewCache(
		gamestate.WithStaleAfter(config.Millis(cfg.GameState.StaleAfterMS)),
		gamestate.WithClock(s.now),
	)
	if s.raycaster == nil && cfg.GameState.RaycastURL != "" {
		s.raycaster = gamestate.NewHTTPRaycaster(cfg.GameState.RaycastURL, s.queue)
	}

	sessions := session.NewStore(
		session.WithHistoryLimit(cfg.Session.HistoryLimit),
		session.WithClock(s.now),
	)

	var proc *trust.Processor
	sink := func(ctx context.Context, playerID int, f model.Finding) {
		proc.ProcessFinding(ctx, playerID, f)
	}

	tracker := statehistory.New(cache, sessions,
		statehistory.WithLimits(statehistory.Limits{
			SpeedLimit:             cfg.State.SpeedLimit,
			VehicleSpeedMultiplier: cfg.State.VehicleSpeedMultiplier,
			HealthChangeRate:       cfg.State.HealthChangeRate,
			ArmorChangeRate:        cfg.State.ArmorChangeRate,
			WeaponSwitchMin:        config.Millis(cfg.State.WeaponSwitchMinMS),
			VehicleTransitionMin:   config.Millis(cfg.State.VehicleTransitionMinMS),
		}),
		statehistory.WithHistoryDepth(cfg.State.HistoryDepth),
		statehistory.WithMetricDepth(cfg.State.MetricDepth),
		statehistory.WithFindingSink(sink),
		statehistory.WithClock(s.now),
	)

	monitorOpts := []netmonitor.Option{
		netmonitor.WithLimits(netmonitor.Limits{
			EventSpam:      cfg.Network.EventSpamLimit,
			PlayerEvents:   cfg.Network.PlayerEventLimit,
			ResourceEvents: cfg.Network.ResourceEventLimit,
			Window:         config.Seconds(cfg.Network.WindowSec),
		}),
		netmonitor.WithRecentDepth(cfg.Network.RecentDepth),
		netmonitor.WithWindowHistory(cfg.Network.WindowHistory),
		netmonitor.WithMinMatches(cfg.Network.MinPatternMatches),
		netmonitor.WithFindingSink(sink),
		netmonitor.WithClock(s.now),
	}
	if len(cfg.Network.Patterns) > 0 {
		monitorOpts = append(monitorOpts, netmonitor.WithPatterns(cfg.Network.Patterns))
	}
	monitor := netmonitor.New(sessions, monitorOpts...)

	procOpts := []trust.Option{
		trust.WithThresholds(trust.Thresholds{
			Warn: cfg.Trust.WarnThreshold,
			Kick: cfg.Trust.KickThreshold,
			Ban:  cfg.Trust.BanThreshold,
		}),
		trust.WithDefaultImpact(cfg.Trust.DefaultImpact),
		trust.WithPolicies(policies(cfg.Detections)),
		trust.WithBanDuration(config.Seconds(cfg.Trust.BanDurationSec)),
		trust.WithRaycastTimeout(config.Millis(cfg.Trust.RaycastTimeoutMS)),
		trust.WithPersister(s.store),
		trust.WithAlerter(notifier),
		trust.WithEnforcer(s.enforcer),
		trust.WithStateEvidence(tracker),
		trust.WithNetworkEvidence(monitor),
		trust.WithClock(s.now),
	}
	if s.raycaster != nil {
		procOpts = append(procOpts, trust.WithRaycaster(s.raycaster, s.loop))
	}
	proc = trust.New(sessions, procOpts...)

	s.engine = &Engine{
		loop:     s.loop,
		tokens:   tokens,
		sessions: sessions,
		tracker:  tracker,
		monitor:  monitor,
		proc:     proc,
		cache:    cache,
		bans:     s.enforcer,
		log:      logger.Get().Named("engine"),
	}
	s.schedule(tokens, tracker, monitor)
	s.server = s.newHTTPServer()

	for _, key := range cfg.Fallbacks {
		s.log.Warn(ctx, "configuration value missing or invalid, using default", logger.String("key", key))
	}
	return s, nil
}

// Engine returns the inbound facade.
func (s *Service) Engine() *Engine { return s.engine }

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler { return s.server.Handler }

func (s *Service) openStore(ctx context.Context) error {
	driver := s.cfg.Persistence.Driver
	if s.store != nil {
		driver = "custom"
	} else {
		switch driver {
		case "jsonl":
			st, err := repository.OpenJSONL(s.cfg.Persistence.Path)
			if err != nil {
				return err
			}
			s.store = st
		case "postgres":
			st, err := repository.OpenPostgres(ctx, s.cfg.Persistence.DSN)
			if err != nil {
				return err
			}
			s.store = st
		default:
			s.store = repository.NopStore{}
			return nil
		}
	}
	s.closers = append(s.closers, s.store.Close)
	s.store = repository.NewAsync(driver, repository.WithBreaker(driver, s.store), s.queue)
	s.log.Info(ctx, "persistence ready", logger.String("driver", driver))
	return nil
}

func (s *Service) openEnforcer(ctx context.Context) error {
	if s.enforcer == nil {
		ec := s.cfg.Enforcement
		if ec.RedisAddr == "" {
			s.enforcer = enforcement.NewLogEnforcer(s.now)
		} else {
			r, err := enforcement.DialRedis(ctx, ec.RedisAddr, ec.RedisPassword, ec.RedisDB,
				enforcement.WithKeyPrefix(ec.KeyPrefix),
				enforcement.WithChannel(ec.Channel),
				enforcement.WithClock(s.now),
			)
			if err != nil {
				return err
			}
			s.closers = append(s.closers, r.Close)
			s.enforcer = r
		}
	}
	s.enforcer = enforcement.NewAsync(s.enforcer, s.queue)
	return nil
}

func (s *Service) notifiers() alert.Multi {
	multi := alert.Multi{alert.NewLogNotifier()}
	if url := s.cfg.Alerts.WebhookURL; url != "" {
		multi = append(multi, alert.NewWebhookNotifier(url, s.queue,
			alert.WithRatePerMinute(s.cfg.Alerts.RateLimitPerMin),
			alert.WithHeaders(s.cfg.Alerts.WebhookHeaders),
		))
	}
	if s.cfg.Alerts.WebsocketEnabled {
		s.hub = alert.NewHub()
		multi = append(multi, s.hub)
	}
	return append(multi, s.extraNotifiers...)
}

func (s *Service) schedule(tokens *token.Service, tracker *statehistory.Tracker, monitor *netmonitor.Monitor) {
	c := s.cfg
	s.loop.Every("token_purge", config.Seconds(c.Token.PurgeIntervalSec), func(ctx context.Context) {
		tokens.PurgeExpired(ctx)
	})
	s.loop.Every("state_check", config.Millis(c.State.CheckIntervalMS), func(ctx context.Context) {
		tracker.CheckAll(ctx)
	})
	s.loop.Every("state_cleanup", config.Seconds(c.State.CleanupIntervalSec), func(ctx context.Context) {
		tracker.Cleanup(ctx)
	})
	s.loop.Every("network_analyze", config.Seconds(c.Network.AnalyzeIntervalSec), func(ctx context.Context) {
		monitor.AnalyzePatterns(ctx)
	})
	s.loop.Every("network_cleanup", config.Seconds(c.Network.CleanupIntervalSec), func(ctx context.Context) {
		monitor.Cleanup(ctx)
	})
	s.loop.Every("system_metrics", systemMetricsInterval, func(context.Context) {
		updateSystemMetrics()
	})
}

func (s *Service) newHTTPServer() *http.Server {
	mux := http.NewServeMux()
	swagger.Register(mux)

	opts := []api.Option{api.WithStats(s.engine), api.WithServerAuth(s.engine)}
	if s.hub != nil {
		opts = append(opts, api.WithAlertFeed(s.hub))
	}
	api.NewServer(s.engine, opts...).Register(mux)

	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Serve runs the loop, the dispatch workers, the alert hub and the HTTP
// server under one supervisor until ctx ends, then releases collaborators.
func (s *Service) Serve(ctx context.Context) error {
	handler := &sutureslog.Handler{Logger: logger.Slog()}
	sup := suture.New("sentinel", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	sup.Add(s.loop)
	sup.Add(s.pool)
	if s.hub != nil {
		sup.Add(s.hub)
	}
	sup.Add(&httpService{server: s.server})

	s.log.Info(ctx, "sentinel starting", logger.String("addr", s.cfg.Addr))
	err := sup.Serve(ctx)
	s.loop.Close()
	s.Close()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases persistence and enforcement connections.
func (s *Service) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.log.Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
	s.closers = nil
}

// httpService adapts http.Server to suture.Service.
type httpService struct {
	server *http.Server
}

func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }

func policies(in map[string]config.DetectionPolicy) map[string]trust.Policy {
	out := make(map[string]trust.Policy, len(in))
	for name, p := range in {
		out[strings.ToLower(name)] = trust.Policy{
			Disabled: p.Disabled,
			Impact:   p.Impact,
			Warn:     p.Warn,
			Kick:     p.Kick,
			Ban:      p.Ban,
		}
	}
	return out
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
