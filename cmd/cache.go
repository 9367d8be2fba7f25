package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the provider lookup cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c := cache.New(st, cache.Options{
			PositiveTTL: cfg.Cache.PositiveTTL(),
			NegativeTTL: cfg.Cache.NegativeTTL(),
		})
		n, err := c.Purge(ctx)
		if err != nil {
			return eris.Wrap(err, "cache purge")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
