package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/app"
	"github.com/segyhp/bnpl-engine/internal/config"
	"github.com/segyhp/bnpl-engine/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bnpl-scheduler",
		Short:        "Background jobs for the BNPL engine",
		SilenceUsage: true,
	}
	run := newRunCmd()
	// Without a subcommand the scheduler runs its cron loop.
	root.RunE = run.RunE
	root.AddCommand(run, newSweepCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the overdue sweep and payment reminders on their cron schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			c := cron.New(cron.WithSeconds(), cron.WithLocation(engine.Config.GetSchedulerLocation()))
			if err := setupCronJobs(ctx, c, engine); err != nil {
				return err
			}

			c.Start()
			engine.Logger.Info("scheduler started")

			<-ctx.Done()
			engine.Logger.Info("shutting down scheduler")
			<-c.Stop().Done()
			engine.Logger.Info("scheduler stopped")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue sweep and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Sweeper.Run(ctx)
			if result != nil {
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return err
		},
	}
}

func bootstrap(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	return app.New(ctx, cfg, logger.Named("scheduler"))
}

func setupCronJobs(ctx context.Context, c *cron.Cron, engine *app.App) error {
	cfg := engine.Config
	logger := engine.Logger

	// Overdue sweep
	if _, err := c.AddJob(cfg.Scheduler.SweepSchedule, engine.SweepJob(ctx)); err != nil {
		return fmt.Errorf("schedule overdue sweep: %w", err)
	}

	// Payment reminders for installments due soon
	if _, err := c.AddFunc(cfg.Scheduler.ReminderSchedule, func() {
		sendPaymentReminders(ctx, engine)
	}); err != nil {
		return fmt.Errorf("schedule payment reminders: %w", err)
	}

	logger.Info("cron jobs scheduled",
		zap.String("sweep_schedule", cfg.Scheduler.SweepSchedule),
		zap.String("reminder_schedule", cfg.Scheduler.ReminderSchedule),
	)
	return nil
}

// sendPaymentReminders logs one reminder per upcoming installment. Delivery
// to customers is handled downstream of the log stream.
func sendPaymentReminders(ctx context.Context, engine *app.App) {
	start := time.Now()
	defer func() {
		engine.Metrics.RecordOperationDuration("payment_reminders", time.Since(start))
	}()

	installments, err := engine.Stats.ListUpcoming(ctx, "", engine.Config.Scheduler.ReminderWindowDays)
	if err != nil {
		engine.Logger.Error("payment reminder scan failed", zap.Error(err))
		return
	}

	for _, inst := range installments {
		engine.Logger.Info("payment reminder",
			zap.String("installment_id", inst.ID.String()),
			zap.String("application_id", inst.ApplicationID.String()),
			zap.Int("installment_number", inst.InstallmentNumber),
			zap.Int64("amount", inst.Amount),
			zap.Time("due_date", inst.DueDate),
		)
	}
	engine.Logger.Info("payment reminders sent", zap.Int("count", len(installments)))
}
