package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/catalog"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/config"
	docrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/document/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/notice"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/qrscan"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/reminder"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-companion-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/utilities"
)

func main() {
	// .env is best-effort: without one, the real environment and defaults apply
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-companion-go")

	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		sugar.Fatalf("snowflake node: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		sugar.Fatalf("load catalog: %v", err)
	}
	loc, err := cfg.Reminder.Location()
	if err != nil {
		sugar.Fatalf("reminder time zone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := reminder.NewGocron(loc, sugar)
	if err != nil {
		sugar.Fatalf("scheduler: %v", err)
	}

	authSvc, err := auth.NewService(db, cfg.Auth, sugar)
	if err != nil {
		sugar.Fatalf("auth: %v", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.RefreshPrunePeriod),
		gocron.NewTask(func() {
			if err := authSvc.PruneExpired(ctx); err != nil {
				sugar.Warnw("prune refresh sessions failed", "err", err)
			}
		}),
		gocron.WithName("auth:prune-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		sugar.Fatalf("schedule refresh pruning: %v", err)
	}

	hub := notice.NewHub(sugar)
	profiles := userrepo.NewProfileRepo(docrepo.NewDocumentRepo(db))
	reminders := reminder.New(sched, cat, hub, reminder.Options{
		Lead:     cfg.Reminder.Lead,
		Location: loc,
		Icon:     cfg.NotificationIcon,
	}, sugar)
	registry := session.NewRegistry(profiles, hub, reminders, user.Options{
		BadgeNoticeDelay: cfg.BadgeNoticeDelay,
		Logger:           sugar,
	}, sugar)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(cfg.HTTP.AllowedOrigins),
	}
	handler := router.RegisterRoutes(router.Handlers{
		Auth:     auth.NewHandler(authSvc, sugar),
		Verifier: authSvc,
		Sessions: registry,
		Session:  session.NewHandler(ctx, registry, hub, authSvc, upgrader, sugar),
		User:     user.NewHandler(profiles, sugar),
		Scan: qrscan.NewHandler(ctx, qrscan.Options{
			Cooldown:       cfg.Scan.Cooldown,
			MaxSurfaceEdge: cfg.Scan.MaxSurfaceEdge,
		}, upgrader, sugar),
		Catalog: catalog.NewHandler(cat),
	}, sugar)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")

		doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(doneCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := reminders.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		return
	}
	sugar.Info("goodbye")
}

// checkOrigin allows same-origin upgrades plus the configured origins.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
