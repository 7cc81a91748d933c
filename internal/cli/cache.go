package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ai-peer-review/internal/cache"
	"github.com/dshills/ai-peer-review/internal/config"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the model response cache",
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached model responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(root)
			if err != nil {
				return err
			}
			n, err := c.Clear()
			if err != nil {
				return runtimeError(fmt.Errorf("clearing cache: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d entries removed).\n", n)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(root)
			if err != nil {
				return err
			}
			stats, err := c.GetStats()
			if err != nil {
				return runtimeError(fmt.Errorf("reading cache stats: %w", err))
			}
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return runtimeError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.AddCommand(clear, show)
	return cmd
}

func openCache(root *rootOptions) (*cache.Cache, error) {
	cfg, err := config.Load(root.configFile, nil)
	if err != nil {
		return nil, usageError("%v", err)
	}
	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, runtimeError(fmt.Errorf("opening cache: %w", err))
	}
	return c, nil
}
