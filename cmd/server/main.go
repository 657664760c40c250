package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendpro/internal/app"
	"attendpro/internal/domain/notification"
	"attendpro/internal/infra/config"
	idb "attendpro/internal/infra/database"
	"attendpro/internal/infra/httpapi"
	"attendpro/internal/infra/idempotency"
	"attendpro/internal/infra/logger"
	"attendpro/internal/infra/metrics"
	"attendpro/internal/infra/scheduler"
	"attendpro/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg, "attendpro-server", os.Stdout)
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"scheduler_mode": cfg.SchedulerMode,
		"dedupe_store":   cfg.DedupeStore,
		"timezone":       cfg.ReportTimezone.String(),
	}).Info("AttendPro server starting")

	db, err := idb.NewPostgresConnection(context.Background(), cfg.DatabaseURL, idb.ServerPool)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	if err := idb.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("Could not apply migrations")
	}
	log.Info("Database ready")

	accountRepo := idb.NewPostgresAccountRepository(db)
	dispatchRepo := idb.NewPostgresDispatchRepository(db)

	status := app.NewSchedulerStatus(cfg.SchedulerEnabled, cfg.SchedulerMode, cfg.ReportPollSpec)
	status.SetIntegration("postgres", true)

	var dedupe notification.Store
	switch cfg.DedupeStore {
	case config.DedupeRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := idempotency.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Could not connect to redis")
		}
		defer rdb.Close()
		dedupe = idempotency.NewRedisStore(rdb, idempotency.DefaultTTL)
		status.SetIntegration("redis", true)
	case config.DedupeMemory:
		log.Warn("Using in-memory dedupe store; restarts may repeat reports")
		dedupe = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	default:
		dedupe = dispatchRepo
	}

	collectors := metrics.New(prometheus.DefaultRegisterer)
	accounts := app.NewAccountService(accountRepo, cfg.AdminTelegramID, cfg.RemoteTimeout, logger.Component("accounts"))

	var bot *telebot.Bot
	var dispatcher *app.Dispatcher
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, false, logger.Component("telebot"))
		if err != nil {
			log.WithError(err).Fatal("Could not create Telegram bot")
		}
	}
	status.SetIntegration("telegram", cfg.TelegramConfigured())

	var reports *app.AutoReportService
	if cfg.TelegramConfigured() {
		client := telegram.NewTelebotAdapter(bot, cfg.TelegramChatID, cfg.TelegramMessageThreadID)
		dispatcher = app.NewDispatcher(dedupe, client, collectors, cfg.RemoteTimeout, logger.Component("dispatcher"))
		reports = app.NewAutoReportService(accountRepo, dispatcher, app.SystemClock(), cfg.ReportTimezone, status, collectors, logger.Component("auto_report"))
	} else {
		log.Warn("Telegram chat is not configured; report delivery is disabled")
	}

	sched := scheduler.NewReportScheduler(cfg.ReportTimezone, logger.Component("scheduler"))
	if cfg.SchedulerEnabled && cfg.SchedulerMode == config.ModeServer && reports != nil {
		if err := sched.AddServerPoll(cfg.ReportPollSpec, reports); err != nil {
			log.WithError(err).Fatal("Could not schedule report poll")
		}
	}
	if cfg.DedupeStore == config.DedupePostgres {
		if err := sched.AddPurge(dispatchRepo); err != nil {
			log.WithError(err).Fatal("Could not schedule dispatch purge")
		}
	}
	sched.Start()

	if bot != nil {
		telegram.RegisterBotCommands(bot, accounts, logger.Component("bot_commands"))
		if reports != nil {
			telegram.RegisterAdminHandlers(bot, accounts, reports, status, logger.Component("admin_handlers"))
			telegram.RegisterReportCallbackHandlers(bot, accounts, reports, logger.Component("report_callbacks"))
		}
		go bot.Start()
		log.Info("Telegram bot started")
	}

	var relayDispatcher app.ReportDispatcher
	if dispatcher != nil {
		relayDispatcher = dispatcher
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Dispatcher:         relayDispatcher,
		Status:             status,
		Metrics:            collectors,
		Location:           cfg.ReportTimezone,
		TelegramConfigured: cfg.TelegramConfigured(),
		Logger:             logger.Component("http"),
	})
	srv := httpapi.NewServer(cfg.HTTPAddr, router)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	if bot != nil {
		bot.Stop()
	}
	sched.Stop()
	log.Info("Application shut down gracefully.")
}
