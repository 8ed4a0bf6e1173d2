package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/readsync/internal/config"
	"github.com/stellarlinkco/readsync/internal/gateway"
	"github.com/stellarlinkco/readsync/internal/marker"
	"github.com/stellarlinkco/readsync/internal/telegram"
	"github.com/stellarlinkco/readsync/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "readsync",
	Short: "readsync - propagate Telegram read status across forwarded copies",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the read-sync daemon",
	RunE:  runDaemon,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the interactive sign-in flow and exit",
	RunE:  runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and tracked state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(runCmd, loginCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	log.Printf("[readsync] starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := telegram.New(cfg)
	err = client.Run(ctx, func(ctx context.Context) error {
		if err := client.Authorize(ctx); err != nil {
			return err
		}

		tr := loadOrFresh(cfg.StatePath)

		m := marker.New(client.Transport())
		if err := m.BuildPeerCache(ctx); err != nil {
			return fmt.Errorf("build peer cache: %w", err)
		}

		return gateway.New(tr, m, client.Events(), cfg.StatePath).Run(ctx)
	})
	// a signal-cancelled context is a clean shutdown, not a failure
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("[readsync] goodbye")
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := telegram.New(cfg)
	return client.Run(ctx, client.Authorize)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Session: %s\n", cfg.SessionPath)
	fmt.Printf("State:   %s\n", cfg.StatePath)

	if _, err := os.Stat(cfg.StatePath); err != nil {
		fmt.Println("Tracked: no state file yet")
		return nil
	}
	tr, err := tracker.Load(cfg.StatePath)
	if err != nil {
		fmt.Printf("Tracked: unreadable state file (%v)\n", err)
		return nil
	}
	s := tr.Stats()
	fmt.Printf("Tracked: %d originals, %d forwards, %d read\n", s.Originals, s.Forwards, s.Read)
	return nil
}

// loadOrFresh falls back to an empty tracker when the state file is
// missing or unreadable; losing history is better than not starting.
func loadOrFresh(path string) *tracker.Tracker {
	if _, err := os.Stat(path); err != nil {
		log.Printf("[readsync] no existing state, starting fresh")
		return tracker.New()
	}
	tr, err := tracker.Load(path)
	if err != nil {
		log.Printf("[readsync] failed to load state, starting fresh: %v", err)
		return tracker.New()
	}
	s := tr.Stats()
	log.Printf("[readsync] loaded state from %s (%d originals, %d forwards, %d read)",
		path, s.Originals, s.Forwards, s.Read)
	return tr
}
