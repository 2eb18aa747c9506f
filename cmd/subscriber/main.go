package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/subscriber/internal/config"
	"github.com/ehr/subscriber/internal/domain/encounter"
	"github.com/ehr/subscriber/internal/domain/identity"
	"github.com/ehr/subscriber/internal/domain/subscription"
	"github.com/ehr/subscriber/internal/domain/topic"
	"github.com/ehr/subscriber/internal/lifecycle"
	"github.com/ehr/subscriber/internal/listener"
	"github.com/ehr/subscriber/internal/platform/fhir"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "subscriber",
		Short:        "FHIR subscriptions demo client and notification listener",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("env", "", "runtime environment; development enables console logging (default development)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default info)")
	flags.String("port", "", "local listener port (default 32019)")
	flags.String("public-url", "", "notification endpoint handed to the server; empty uses the local URL")
	flags.String("fhir-server", "", "FHIR server base URL (default https://server.subscriptions.argo.run)")
	flags.String("patient-id", "", "patient the subscription is filtered to (default DevDays00120)")
	flags.Bool("generate-patient-id", false, "use a freshly generated patient id")
	flags.Int("threshold", 0, "notifications to receive before shutting down (default 2)")
	flags.String("topic-resource", "", "topic resource type: Topic or SubscriptionTopic (default Topic)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(basicCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(listenCmd())
	return rootCmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Subscribe, trigger an encounter and wait for notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, (*lifecycle.Orchestrator).Run)
		},
	}
}

func basicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "basic",
		Short: "Subscribe and immediately unsubscribe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, (*lifecycle.Orchestrator).RunBasic)
		},
	}
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the topics the server offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			client := fhir.NewClient(cfg.FHIRServerURL, logger)
			topics := topic.NewService(client, cfg.TopicResource, logger).List(cmd.Context())
			if len(topics) == 0 {
				logger.Error().Msg("failed to get topics")
				return lifecycle.ErrNoTopics
			}
			for _, t := range topics {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s - %s: %s\n  %s\n", t.ResourceType, t.ID, t.Title, t.Description, t.URL)
			}
			return nil
		},
	}
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Only run the notification listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			srv := listener.New(cfg.PortNumber(), logSink{logger: logger}, logger)
			if err := srv.Listen(); err != nil {
				logger.Error().Err(err).Msg("failed to start listener")
				return err
			}

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(sigCtx)
			g.Go(srv.Serve)
			g.Go(func() error { return srv.Work(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			})
			return g.Wait()
		},
	}
}

// bootstrap loads configuration and builds the logger every command uses.
func bootstrap(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	env := os.Getenv("ENV")
	logger := newLogger(env == "" || env == "development", "")

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return nil, logger, err
	}
	return cfg, newLogger(cfg.IsDev(), cfg.LogLevel), nil
}

func newLogger(dev bool, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if dev {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// runDemo binds the listener, then drives the orchestrator with start until
// the run ends, the listener fails or the process is signalled.
func runDemo(cmd *cobra.Command, start func(*lifecycle.Orchestrator, context.Context) error) error {
	cfg, logger, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	client := fhir.NewClient(cfg.FHIRServerURL, logger)
	orch := lifecycle.New(
		topic.NewService(client, cfg.TopicResource, logger),
		identity.NewService(client, logger),
		subscription.NewService(client, logger),
		encounter.NewService(client, logger),
		lifecycle.Options{
			PatientID:       cfg.PatientID,
			CallbackURL:     cfg.CallbackURL(),
			Threshold:       cfg.NotificationThreshold,
			HeartbeatPeriod: cfg.HeartbeatPeriod,
			Reason:          cfg.SubscriptionReason,
		},
		logger,
	)

	srv := listener.New(cfg.PortNumber(), orch, logger)
	if err := srv.Listen(); err != nil {
		logger.Error().Err(err).Msg("failed to start listener")
		return err
	}
	logger.Info().
		Str("fhir_server", cfg.FHIRServerURL).
		Str("local_url", cfg.LocalURL()).
		Str("callback_url", cfg.CallbackURL()).
		Str("patient", cfg.PatientReference()).
		Msg("starting")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Serve)
	g.Go(func() error { return srv.Work(gctx) })
	g.Go(func() error {
		// Failures are recorded on the orchestrator and surface through Err.
		_ = start(orch, gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-orch.Done():
		case <-sigCtx.Done():
			logger.Warn().Msg("interrupted, removing subscription")
			interrupt(orch)
		case <-gctx.Done():
			interrupt(orch)
		}
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("listener failed")
		return err
	}
	if err := orch.Err(); err != nil {
		return err
	}
	logger.Info().Int("notifications", orch.NotificationCount()).Msg("done")
	return nil
}

func interrupt(orch *lifecycle.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	orch.Interrupt(ctx)
}

// logSink is the listen command's sink: the listener already logs each
// notification, so only interpretation failures need a line here.
type logSink struct {
	logger zerolog.Logger
}

func (s logSink) HandleNotification(context.Context, subscription.Event) {}

func (s logSink) HandleNotificationError(_ context.Context, err error) {
	s.logger.Warn().Err(err).Msg("notification ignored")
}
