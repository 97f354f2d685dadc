package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inklet/inklet/pkg/api"
	"github.com/inklet/inklet/pkg/assets"
	"github.com/inklet/inklet/pkg/config"
	"github.com/inklet/inklet/pkg/graph"
	"github.com/inklet/inklet/pkg/hub"
	"github.com/inklet/inklet/pkg/hydrate"
	"github.com/inklet/inklet/pkg/log"
	"github.com/inklet/inklet/pkg/materialize"
	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/snapshot"
	"github.com/inklet/inklet/pkg/store"
	"github.com/inklet/inklet/pkg/workspace"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inkletd",
	Short: "Inklet - collaborative Markdown workspace engine",
	Long: `Inklet is the realtime engine behind a multi-user Markdown
workspace: live CRDT document rooms over websockets, an append-only
update log folded into snapshots, automatic archives with restore, and
canonical Markdown files on disk.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Inklet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("listen", "", "Override the listen address")
}

func serve(cfg config.Config) error {
	logger := log.WithComponent("inkletd")
	metrics.SetVersion(Version)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	metrics.RegisterComponent("store", true, "")

	ws, err := workspace.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to prepare workspace: %w", err)
	}

	secret := cfg.SigningSecret
	if secret == "" {
		secret, err = assets.GenerateSecret()
		if err != nil {
			return err
		}
		logger.Warn().Msg("signing_secret_generated_for_this_run")
	}
	signer := assets.NewSigner(secret)

	graphs := graph.NewUpdater(st, st)
	materializer := materialize.New(st, ws, graphs, log.WithComponent("materialize"))
	hydration := hydrate.NewService(st)
	snapshots := snapshot.NewService(st, st, log.WithComponent("snapshot"))

	engine := hub.New(st, hydration, snapshots, materializer, hub.Config{
		AutoArchiveInterval: cfg.AutoArchiveInterval.Std(),
		DebounceInterval:    600 * time.Millisecond,
		PersistQueueSize:    512,
	})
	metrics.RegisterComponent("hub", true, "")

	server := api.NewServer(engine, st, signer, ws, nil)
	server.SetAssetURLTTL(cfg.AssetURLTTL.Std())
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SnapshotInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SnapshotInterval.Std())
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := engine.SnapshotAll(cfg.SnapshotKeepVersions, cfg.UpdatesKeepWindow); err != nil {
						logger.Error().Err(err).Msg("snapshot_all_failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errc <- httpServer.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
