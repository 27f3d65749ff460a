package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/crypto"
	"github.com/mlrus/openr/health"
	"github.com/mlrus/openr/logging"
	"github.com/mlrus/openr/store"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the KvStore and health checker",
	GroupID: "node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}

		level := slog.LevelInfo
		if runVerbose {
			level = slog.LevelDebug
		}
		log, err := logging.New(cfg.NodeId, level, cfg.LogPath)
		if err != nil {
			return err
		}

		var keypair crypto.Keypair
		hasKeys := false
		if cfg.Encrypt {
			if cfg.KeyPath == "" {
				return fmt.Errorf("encrypt is enabled but keypair is not set")
			}
			keypair, err = crypto.LoadKeypair(cfg.KeyPath)
			if err != nil {
				return err
			}
			hasKeys = true
		}

		ctx, cancel := context.WithCancelCause(context.Background())
		defer cancel(nil)

		node := store.NewNode(ctx, cancel, cfg, log, store.NewUDPTransport(), keypair, hasKeys)
		checker := health.NewChecker(ctx, cancel, cfg, log, store.NewUDPTransport())

		nodeErr := make(chan error, 1)
		go func() { nodeErr <- node.Run() }()

		if err := checker.AttachTo(node); err != nil {
			return fmt.Errorf("attach health checker: %w", err)
		}

		checkerErr := make(chan error, 1)
		go func() { checkerErr <- checker.Run() }()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sig:
			log.Info("received shutdown signal")
			cancel(nil)
		case err := <-nodeErr:
			log.Error("kvstore exited", "error", err)
			cancel(fmt.Errorf("kvstore exited: %w", err))
		case err := <-checkerErr:
			log.Error("health checker exited", "error", err)
			cancel(fmt.Errorf("health checker exited: %w", err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")
}
