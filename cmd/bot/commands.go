package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/app"
	"github.com/ykvlv/payment-reminder-bot/internal/config"
	"github.com/ykvlv/payment-reminder-bot/internal/domain"
	"github.com/ykvlv/payment-reminder-bot/internal/logger"
)

// exitCode maps configuration problems to 2, everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, domain.ErrConfig) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Telegram bot that reminds subscribers a day before their monthly payment",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot, the daily trigger and the health endpoint",
			RunE:  runServe,
		},
		newCheckCmd(),
	)
	return root
}

// bootstrap loads config and logger; errors here happen before logging exists.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger init: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	// Ensure logger flush; ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	application, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		log.Error("app run failed", zap.Error(err))
		return err
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one evaluation cycle now and print the summary",
		Long: `Run one evaluation cycle now and print the summary.

check opens the store and the bot only. It does not start the daily trigger
and bypasses the Redis day lock (REDIS_URL is ignored), so running it on a day
the service has already run sends the reminders again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			now, err := checkTime(cfg, date)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			application, err := app.NewOneShot(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				application.Stop(shCtx)
				cancel()
			}()

			sum := application.Runner().Run(ctx, now)
			if sum.Err != nil {
				return sum.Err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"run=%s tomorrow=%s target_day=%d evaluated=%d eligible=%d sent=%d failed=%d\n",
				sum.RunID, domain.FormatCalendarDate(sum.Tomorrow), sum.TargetDay,
				sum.Evaluated, sum.Eligible, sum.Sent, sum.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "evaluate as if today were this date (DD.MM.YYYY)")
	return cmd
}

// checkTime returns now, or the configured reminder time on the given day.
func checkTime(cfg config.Config, date string) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	if date == "" {
		return time.Now().In(loc), nil
	}
	d, err := domain.ParseCalendarDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), cfg.ReminderHour, cfg.ReminderMinute, 0, 0, loc), nil
}
