package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/tiercache/internal/profile"
	"github.com/hrygo/tiercache/manager"
	"github.com/hrygo/tiercache/store"
)

const greetingBanner = `tiercache - persistent tiered cache engine`

var rootCmd = &cobra.Command{
	Use:   "tiercache",
	Short: greetingBanner,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := newManager(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				slog.Error("failed to close cache manager", "error", err)
			}
		}()

		slog.Info("tiercache started", "driver", viper.GetString("driver"), "data", viper.GetString("data"))
		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache and tier statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, m *manager.Manager) error {
			stats, err := m.Cache().GetStatistics(ctx)
			if err != nil {
				return err
			}
			out := map[string]any{"cache": stats}
			for _, tier := range []store.Tier{store.TierPersistent, store.TierBounded} {
				tierStats, err := m.GetTierStatistics(ctx, tier)
				if err != nil {
					return err
				}
				out[string(tier)] = tierStats
			}
			return printJSON(out)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Round-trip a probe entry through the cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, m *manager.Manager) error {
			if err := m.HealthCheck(ctx); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		})
	},
}

var clearLRUCmd = &cobra.Command{
	Use:   "clear-lru",
	Short: "Wipe the bounded (LRU) tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, m *manager.Manager) error {
			deleted, err := m.ClearLRU(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cleared %d entries\n", deleted)
			return nil
		})
	},
}

var checkUpdatesCmd = &cobra.Command{
	Use:   "check-updates",
	Short: "Run a single freshness pass over source-tracked entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, m *manager.Manager) error {
			return m.CheckForUpdates(ctx)
		})
	},
}

func newProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:   viper.GetString("mode"),
		Data:   viper.GetString("data"),
		Driver: viper.GetString("driver"),
		DSN:    viper.GetString("dsn"),
	}
	p.PollingEnabled = viper.GetBool("polling")
	p.BaseLocator = viper.GetString("base-locator")
	p.CleanupEnabled = true
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newManager(ctx context.Context) (*manager.Manager, error) {
	p, err := newProfile()
	if err != nil {
		return nil, err
	}
	return manager.New(ctx, p)
}

func withManager(ctx context.Context, fn func(context.Context, *manager.Manager) error) error {
	m, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Error("failed to close cache manager", "error", err)
		}
	}()
	return fn(ctx, m)
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the engine, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().Bool("polling", false, "enable freshness polling")
	rootCmd.PersistentFlags().String("base-locator", "", "base locator prepended to relative source locators")

	for _, name := range []string{"mode", "data", "driver", "dsn", "polling", "base-locator"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("tiercache")
	viper.AutomaticEnv()

	rootCmd.AddCommand(statsCmd, healthCmd, clearLRUCmd, checkUpdatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
