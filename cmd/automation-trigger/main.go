package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopfloor/app"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "shopfloor-automation-trigger"

func main() {
	cmd := &cli.Command{
		Name:                  "automation-trigger",
		Usage:                 "Fire schedule automation rules on their cron expressions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Path to a .env file (defaults to .env in the working directory)",
				Value:   "",
				Sources: cli.EnvVars("ENV_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Schedule the active rules and keep them in sync until interrupted",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "refresh-interval",
						Usage:   "How often rule changes are picked up",
						Value:   time.Minute,
						Sources: cli.EnvVars("TRIGGER_REFRESH_INTERVAL"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runTrigger(ctx, cmd.String("env-file"), cmd.Duration("refresh-interval"))
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the active schedule rules with their next activation",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listTriggers(ctx, cmd.String("env-file"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func runTrigger(ctx context.Context, envFile string, refresh time.Duration) error {
	app.LoadEnv(envFile)
	rt, err := app.Start(serviceName)
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	trigger := NewScheduleTrigger()
	count, err := trigger.Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedule rules: %w", err)
	}
	trigger.Start()
	defer trigger.Stop()
	logrus.WithField("rules", count).Info("automation trigger started")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return keepInSync(ctx, trigger, refresh)
}

func keepInSync(ctx context.Context, trigger *ScheduleTrigger, refresh time.Duration) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[QUIT] automation trigger exiting")
			return nil
		case <-ticker.C:
			if _, err := trigger.Sync(ctx); err != nil {
				logrus.WithError(err).Warn("failed to refresh schedule rules")
			}
		}
	}
}

func listTriggers(ctx context.Context, envFile string) error {
	app.LoadEnv(envFile)
	rt, err := app.Start(serviceName)
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	trigger := NewScheduleTrigger()
	if _, err := trigger.Sync(ctx); err != nil {
		return fmt.Errorf("failed to load schedule rules: %w", err)
	}
	printSchedule(os.Stdout, trigger)
	return nil
}
