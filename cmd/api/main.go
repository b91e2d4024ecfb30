package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/auth"
	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/campaigns"
	"campaign-dialer/internal/config"
	"campaign-dialer/internal/dnc"
	"campaign-dialer/internal/followup"
	"campaign-dialer/internal/httpapi"
	"campaign-dialer/internal/leads"
	"campaign-dialer/internal/rbac"
	"campaign-dialer/internal/reporting"
	"campaign-dialer/internal/stats"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/internal/webhooks"
	"campaign-dialer/pkg/alert"
	"campaign-dialer/pkg/logger"
	"campaign-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
)

// release is stamped at build time with -ldflags "-X main.release=...".
var release = "dev"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	alerts, flushAlerts, err := alert.Setup(cfg.Sentry.DSN, cfg.App.Env, release)
	if err != nil {
		log.Error("sentry init failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	operators, err := auth.ParseOperators(cfg.Auth.Operators, rbac.Known)
	if err != nil {
		log.Error("operators invalid", "err", err)
		os.Exit(1)
	}
	if operators.Len() == 0 {
		log.Warn("no operators configured; the operator API will reject every login")
	}

	scripts, err := telephony.LoadScripts(cfg.ScriptsFile)
	if err != nil {
		log.Error("scripts load failed", "err", err, "path", cfg.ScriptsFile)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpen})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	var twilio *telephony.TwilioClient
	if cfg.Twilio.Enabled() {
		twilio = telephony.NewTwilioClient(telephony.TwilioConfig{
			AccountSID:       cfg.Twilio.AccountSID,
			AuthToken:        cfg.Twilio.AuthToken,
			FromNumber:       cfg.Twilio.FromNumber,
			PublicBaseURL:    cfg.Twilio.PublicBaseURL,
			MachineDetection: cfg.Twilio.MachineDetection,
			Record:           cfg.Twilio.Record,
		}, httpClient)
	}
	var dialer telephony.Adapter
	switch {
	case cfg.Dialer.Provider == "vapi" && cfg.Vapi.Enabled():
		dialer = telephony.NewVapiClient(telephony.VapiConfig{
			APIKey:        cfg.Vapi.APIKey,
			AssistantID:   cfg.Vapi.AssistantID,
			PhoneNumberID: cfg.Vapi.PhoneNumberID,
			BaseURL:       cfg.Vapi.BaseURL,
		}, httpClient)
	case cfg.Dialer.Provider == "twilio" && twilio != nil:
		dialer = twilio
	default:
		log.Warn("no telephony adapter configured; agent instances cannot start", "provider", cfg.Dialer.Provider)
	}
	if cfg.Vapi.Enabled() {
		// VAPI_WEBHOOK_UNVERIFIED: Vapi callbacks are accepted without authentication.
		log.Warn("vapi webhook is unauthenticated; restrict /webhooks/vapi at the edge")
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	registry := dnc.NewRegistry(dnc.NewPostgresRepo(db), auditSvc)
	leadStore := leads.NewPostgresStore(db)
	ledger := calls.NewLedger(calls.NewPostgresRepo(db), alerts)

	manager := campaigns.NewManager(campaigns.Deps{
		Ledger:  ledger,
		Leads:   leadStore,
		DNC:     registry,
		Adapter: dialer,
		Limiter: utils.NewConcurrencyCap(rdb, "dialer:inflight:", cfg.Dialer.CapTTL),
		Scripts: scripts,
		Alerts:  alerts,
	})

	var sms followup.SMSSender
	if twilio != nil {
		sms = twilio
	}
	var mailer followup.Mailer
	if cfg.FollowUp.EmailEnabled {
		mailer = followup.NewSMTPMailer(followup.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.From,
		})
	}
	dispatcher := followup.NewDispatcher(followup.Config{
		SMSEnabled:   cfg.FollowUp.SMSEnabled,
		EmailEnabled: cfg.FollowUp.EmailEnabled,
		MaxInFlight:  cfg.FollowUp.MaxInFlight,
		SendTimeout:  cfg.FollowUp.SendTimeout,
	}, followup.Deps{
		DNC:      registry,
		SMS:      sms,
		Mailer:   mailer,
		Leads:    leadStore,
		Scripts:  scripts,
		ScriptOf: manager.ScriptID,
	})

	hub := stats.NewHub(16)
	aggregator := stats.NewAggregator(ledger, stats.MultiBus{hub, stats.NewRedisBus(rdb)})

	ledger.Subscribe(manager.OnChange)
	ledger.Subscribe(aggregator.OnChange)
	ledger.Subscribe(dispatcher.OnChange)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg: cfg,
		api: httpapi.Handlers{
			Auth:      authManager,
			Operators: operators,
			Campaigns: manager,
			Calls:     ledger,
			DNC:       registry,
			Stats:     aggregator,
			Reports:   reporting.NewService(ledger),
			Audit:     auditSvc,
			Defaults: campaigns.Config{
				PacingDelay:   cfg.Dialer.DefaultPacing,
				MaxConcurrent: cfg.Dialer.MaxConcurrent,
			},
		},
		hooks: webhooks.Handlers{
			Ledger:    ledger,
			DNC:       registry,
			Scripts:   scripts,
			StreamURL: cfg.Twilio.StreamURL,
		},
		stream: stats.StreamHandler(aggregator, hub, 0),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: stats streams stay open
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		aggregator.Run(gctx)
		return nil
	})
	g.Go(func() error {
		manager.RunReaper(gctx, time.Minute, cfg.Dialer.StaleAfter)
		return nil
	})
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", cfg.Dialer.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		// stop dialing before draining follow-ups; placed calls keep running at the provider
		manager.Close()
		dispatcher.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("http server failed", "err", err)
	}
	flushAlerts(2 * time.Second)
}
