package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaumene/debridstrm/internal/api"
	"github.com/amaumene/debridstrm/internal/config"
	"github.com/amaumene/debridstrm/internal/controllers"
	"github.com/amaumene/debridstrm/internal/metrics"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/amaumene/debridstrm/internal/scheduler"
	"github.com/amaumene/debridstrm/internal/services/realdebrid"
	"github.com/amaumene/debridstrm/internal/strm"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	client  *realdebrid.Client
	cycles  *controllers.CycleController
	metrics *metrics.Metrics
}

// newApp loads configuration and wires the components
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"media_path": cfg.MediaPath,
		"output_dir": cfg.OutputDir,
		"interval":   cfg.CycleInterval().String(),
		"expiry":     cfg.ExpiryWindow().String(),
	}).Info("Configuration loaded")

	ignore, err := utils.LoadIgnoreList(cfg.IgnoreFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ignore list, continuing without it")
		ignore = utils.NewIgnoreList()
	} else if ignore.Len() > 0 {
		logger.WithField("terms", ignore.Len()).Info("Ignore list loaded")
	}

	m := metrics.New()
	client, err := realdebrid.NewClient(cfg, logger, realdebrid.WithObserver(m))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Real-Debrid client: %w", err)
	}

	store, err := models.NewStore(cfg.OutputDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	tree := strm.NewTree(cfg.UnorganizedDir, logger)
	filter := strm.NewFilter(cfg.MinVideoSizeBytes(), cfg.VideoExtensions, cfg.SubtitleExtensions)
	reconciler := controllers.NewReconciler(tree, filter, ignore, logger)
	cycles := controllers.NewCycleController(cfg, client, store, tree, reconciler, utils.RealClock{}, m, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		cycles:  cycles,
		metrics: m,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:          "debridstrm",
	Short:        "Turn Real-Debrid torrents into .strm pointer files",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.serve()
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := a.cycles.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cycle %d: %d torrents, %d links resolved, %d pointers written, %d retries queued\n",
			summary.Cycle, summary.Torrents, summary.LinksResolved, summary.Reconcile.Created, summary.RetryQueue)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the API key against the Real-Debrid account endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		user, err := a.client.GetUser(cmd.Context())
		if err != nil {
			return fmt.Errorf("account check failed: %w", err)
		}
		fmt.Printf("Username:   %s\n", user.Username)
		fmt.Printf("Type:       %s\n", user.Type)
		fmt.Printf("Points:     %d\n", user.Points)
		fmt.Printf("Expiration: %s\n", user.Expiration)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.AddCommand(onceCmd, checkCmd)
}

// serve runs the scheduler and the HTTP server until a shutdown signal arrives
func (a *app) serve() error {
	a.logger.Info("Starting debridstrm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if user, err := a.client.GetUser(ctx); err != nil {
		a.logger.WithError(err).Warn("Account check failed, cycles will retry the API")
	} else {
		a.logger.WithFields(logrus.Fields{
			"username":   user.Username,
			"type":       user.Type,
			"expiration": user.Expiration,
		}).Info("Real-Debrid account verified")
	}

	sched := scheduler.NewScheduler(a.cycles, a.cfg.CycleInterval(), a.logger)
	sched.Start()
	defer sched.Stop()

	serverErrChan := make(chan error, 1)
	var server *api.Server
	if a.cfg.ServerEnabled() {
		server = api.NewServer(a.cfg, a.cycles, a.client, a.metrics.Handler(), a.logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				serverErrChan <- err
			}
		}()
	} else {
		a.logger.Info("HTTP server disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.logger.Info("debridstrm is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if server != nil {
			if err := server.Shutdown(context.Background()); err != nil {
				a.logger.WithError(err).Error("Error during server shutdown")
			}
		}
	}

	a.logger.Info("debridstrm stopped")
	return nil
}
