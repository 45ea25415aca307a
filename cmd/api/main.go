package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/internal/funnel"
	transporthttp "github.com/acentrix/quotefunnel/internal/http"
	"github.com/acentrix/quotefunnel/internal/http/handlers"
	"github.com/acentrix/quotefunnel/internal/http/health"
	"github.com/acentrix/quotefunnel/internal/middleware"
	"github.com/acentrix/quotefunnel/internal/platform/config"
	"github.com/acentrix/quotefunnel/internal/platform/logging"
	"github.com/acentrix/quotefunnel/internal/polling"
	"github.com/acentrix/quotefunnel/internal/store/memory"
	mongostore "github.com/acentrix/quotefunnel/internal/store/mongo"
	"github.com/acentrix/quotefunnel/internal/telemetry"
	"github.com/acentrix/quotefunnel/internal/upstream"
	"github.com/acentrix/quotefunnel/internal/wizard"
)

const sessionRecordTTL = 24 * time.Hour

func main() {
	cfg := config.MustLoad()
	log := logging.New(cfg.Env)
	log.Info("starting quotefunnel API", "port", cfg.Port, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstreamTimeout := time.Duration(cfg.UpstreamTimeoutSec) * time.Second
	bridge := upstream.NewSessionBridge(cfg.IdentityBaseURL, upstreamTimeout)
	profiles := upstream.NewProfileClient(cfg.ProfileBaseURL, upstreamTimeout, bridge)
	refdata := upstream.NewReferenceClient(cfg.ReferenceBaseURL, upstreamTimeout, bridge)
	agg := upstream.NewAggregatorClient(cfg.ProposalBaseURL, upstreamTimeout, bridge)
	cases := upstream.NewCaseDeskClient(cfg.CaseDeskBaseURL, upstreamTimeout, bridge)
	checkout := upstream.NewPurchaseClient(cfg.CheckoutBaseURL, upstreamTimeout, bridge)

	var store core.SessionStore
	var pinger health.Pinger
	switch cfg.StoreType {
	case "mongo":
		log.Info("connecting to MongoDB", "db", cfg.MongoDB)
		client, err := mongostore.NewClient(cfg)
		if err != nil {
			log.Error("mongo connect failed", "err", err)
			os.Exit(1)
		}
		defer client.Close(context.Background())

		repo := mongostore.NewSessionsRepo(client)
		if err := repo.EnsureIndexes(ctx, sessionRecordTTL); err != nil {
			log.Error("mongo index setup failed", "err", err)
			os.Exit(1)
		}
		store = repo
		pinger = client
	default:
		store = memory.NewSessionStore()
	}

	registry := prometheus.NewRegistry()
	events := telemetry.New(log, registry)

	mgr := funnel.NewManager(
		core.NewLines(),
		wizard.Deps{
			Bridge:   bridge,
			Profiles: profiles,
			RefData:  refdata,
			Agg:      agg,
			Cases:    cases,
			Store:    store,
			Events:   events,
			Log:      log,
		},
		polling.Config{
			Interval:     cfg.PollInterval,
			HardTimeout:  cfg.PollHardTimeout,
			SettleWindow: cfg.PollSettleWindow,
		},
		checkout,
		events,
		cfg.AgentID,
		cfg.Channel,
		log,
	)
	defer mgr.Shutdown()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute)
	limiter.StartWithContext(ctx)

	api := transporthttp.NewRouter(transporthttp.Deps{
		Mounts: []handlers.Mountable{
			handlers.NewFunnelHandler(mgr, log),
			handlers.NewReferenceHandler(refdata, log),
		},
		Metrics: registry,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(time.Duration(cfg.HTTPRequestTimeoutSec) * time.Second))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.LimitRequestBody(middleware.MaxBodySize))
	r.Use(limiter.Middleware)

	hc := health.New(log, pinger, 2*time.Second)
	r.Get("/health", hc.Live)
	r.Get("/readyz", hc.Ready)
	r.Mount("/", api)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
}
