package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/config"
	"github.com/ykvlv/payment-reminder-bot/internal/cycle"
	"github.com/ykvlv/payment-reminder-bot/internal/notify"
	"github.com/ykvlv/payment-reminder-bot/internal/scheduler"
	"github.com/ykvlv/payment-reminder-bot/internal/store"
	"github.com/ykvlv/payment-reminder-bot/internal/telegram"
)

// App owns every long-lived handle: store, bot, trigger and health server.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	runner  *cycle.Runner
	sched   *scheduler.Scheduler
	locker  *scheduler.RedisLocker
}

// apiEndpoint is the Bot API URL template; tests point it at a stub server.
var apiEndpoint = tgbotapi.APIEndpoint

// New builds the application. Store and lock connections are opened here and
// released by Stop.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a, loc, err := newCore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var locker scheduler.Locker
	if cfg.RedisURL != "" {
		host, _ := os.Hostname()
		a.locker, err = scheduler.NewRedisLocker(ctx, cfg.RedisURL, host)
		if err != nil {
			a.closeHandles()
			return nil, err
		}
		locker = a.locker
		log.Info("day lock enabled", zap.String("backend", "redis"))
	}

	a.sched, err = scheduler.New(a.runner, log, scheduler.Options{
		Hour:     cfg.ReminderHour,
		Minute:   cfg.ReminderMinute,
		Location: loc,
		Locker:   locker,
	})
	if err != nil {
		a.closeHandles()
		return nil, err
	}

	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      healthMux(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

// NewOneShot builds only what a single evaluation cycle needs: store, bot,
// router and dispatcher. There is no trigger, no day lock and no health
// server, so a one-shot run neither claims nor respects the day lock.
func NewOneShot(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a, _, err := newCore(ctx, cfg, log)
	return a, err
}

func newCore(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, *time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, apiEndpoint, &http.Client{Timeout: 60 * time.Second})
	if err != nil {
		return nil, nil, err
	}
	bot.Debug = false

	a := &App{cfg: cfg, log: log, bot: bot}

	a.repo, err = store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		Path:        cfg.DBPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("store ready", zap.String("driver", cfg.StoreDriver))

	a.router = telegram.NewRouter(bot, log, a.repo)

	ncfg := notify.DefaultConfig()
	ncfg.RatePerSec = cfg.SendRatePerSec
	dispatcher := notify.New(a.router, log, ncfg)
	a.runner = cycle.NewRunner(a.repo, dispatcher, loc, cfg.SendConcurrency, log)
	return a, loc, nil
}

func healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Bot is running ✅"))
	})
	return mux
}

// Runner exposes the evaluation cycle for one-shot runs.
func (a *App) Runner() *cycle.Runner { return a.runner }

// Start launches the health server and the daily trigger.
func (a *App) Start() {
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()
	a.sched.Start()
}

// Stop shuts everything down in reverse order of Start. Parts a one-shot
// App never built are skipped.
func (a *App) Stop(ctx context.Context) {
	if a.sched != nil {
		if err := a.sched.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop", zap.Error(err))
		}
	}
	if a.bot != nil {
		a.bot.StopReceivingUpdates()
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
	}
	a.closeHandles()
}

func (a *App) closeHandles() {
	if a.locker != nil {
		_ = a.locker.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("store close", zap.Error(err))
		}
	}
}

// Run starts the app and handles Telegram updates until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting payment-reminder-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.cfg.ReminderTZ),
	)
	a.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.Stop(shCtx)
			cancel()
			return nil

		case <-sweep.C:
			a.router.SweepSessions()

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
