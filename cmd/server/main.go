package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/backend"
	"github.com/frevohq/frevo-core/internal/bus"
	"github.com/frevohq/frevo-core/internal/dom"
	"github.com/frevohq/frevo-core/internal/infrastructure/config"
	"github.com/frevohq/frevo-core/internal/infrastructure/monitoring"
	"github.com/frevohq/frevo-core/internal/inject"
	"github.com/frevohq/frevo-core/internal/intercept"
	"github.com/frevohq/frevo-core/internal/logging"
	"github.com/frevohq/frevo-core/internal/nav"
	"github.com/frevohq/frevo-core/internal/server"
	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/state"
	"github.com/frevohq/frevo-core/internal/store"
)

const startPage = "https://www.freelancer.com/search/projects"

func main() {
	cfg := config.LoadOrDefault()

	log := logging.NewDefault()
	if cfg.Logging.Development {
		log = logging.NewDevelopment()
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store init failed", zap.Error(err))
	}

	b := bus.New()
	win := bus.NewWindow()
	metrics := monitoring.NewMetrics()

	session := backend.NewAuthSession(st, log.Logger)
	owners := backend.NewJobOwnerCache(st, log.Logger)
	projects := backend.NewProjectDataMap(st, log.Logger)
	client := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RetryMax:  cfg.Backend.RetryMax,
		RateLimit: cfg.Backend.RateLimit,
	}, session, owners, log.Logger)

	scheduler := cron.New()
	if err := owners.ScheduleDailyClear(ctx, scheduler); err != nil {
		log.Warn("daily cache clear not scheduled", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// The host page session: the page realm's transport rewrites listing
	// requests, the content realm's manager runs route side effects on it.
	page, err := dom.New(startPage, "<html><body></body></html>")
	if err != nil {
		log.Fatal("page session init failed", zap.Error(err))
	}

	transport := intercept.New(nil, intercept.Options{
		WatchedPath:     cfg.Intercept.WatchedPath,
		DefaultPageSize: cfg.Intercept.DefaultJobsPerPage,
	}, log.Logger)
	agent := intercept.NewAgent(transport, win, log.Logger)
	agent.Start()
	defer agent.Stop()

	srv := server.New(server.Deps{
		Bus:      b,
		Store:    st,
		Client:   client,
		Projects: projects,
		Metrics:  metrics,
		Logger:   log.Logger,
	})

	transport.Observe(func(original, modified string) {
		metrics.RecordIntercepted("listing")
		if modified != original {
			metrics.Rewritten.Inc()
		}
		srv.WS().PublishInterception(map[string]interface{}{
			"original": original,
			"modified": modified,
		})
	})
	transport.ObserveSnapshots(func(snap types.ProjectSnapshot) {
		metrics.SnapshotsCaptured.Inc()
		if err := projects.Record(ctx, snap); err != nil {
			log.Warn("project snapshot not recorded", zap.Error(err))
		}
	})

	injector := inject.NewManager(page, inject.Fragment{
		Marker: "data-frevo-button",
		HTML:   `<button class="frevo-generate">Generate Proposal</button>`,
	}, inject.Options{
		PollInterval: cfg.Inject.PollInterval,
		Timeout:      cfg.Inject.AnchorTimeout,
		Debounce:     cfg.Inject.Debounce,
	}, log.Logger)

	content := state.NewManager(bus.Content, state.Components{
		Store:    st,
		Bus:      b,
		Window:   win,
		Page:     page,
		Injector: injector,
		Logger:   log.Logger,
	})
	if res := content.Initialize(ctx); !res.Success {
		log.Fatal("content context init failed", zap.Stringp("error", res.Error))
	}
	defer content.Close()

	detector := nav.New(page, content.HandleNavigation, nav.Options{
		PollInterval: cfg.Detect.PollInterval,
		SettleDelay:  cfg.Detect.SettleDelay,
	}, log.Logger)
	detector.Start(ctx)
	defer detector.Stop()

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Fatal("server error", zap.Error(err))
	}
}

// newStore picks Redis when configured, process memory otherwise.
func newStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Store, error) {
	if cfg.Redis.URL == "" {
		log.Info("using in-memory settings store")
		return store.NewMemory(), nil
	}
	log.Info("using redis settings store", zap.String("prefix", cfg.Redis.Prefix))
	return store.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
}
