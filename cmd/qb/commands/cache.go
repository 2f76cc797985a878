package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/internal/invalidation"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewCacheCommand creates the cache command group
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate metadata caches",
	}

	cmd.AddCommand(newCacheWarmCommand())
	cmd.AddCommand(newCacheInvalidateCommand())

	return cmd
}

func newCacheWarmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "warm APP",
		Short: "Load the table and field metadata of an app",
		Long:  "Load every table and field of an app into the metadata cache and report what was loaded. Useful to check that a token can read an app's schema.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			tables, err := client.Tables(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list tables: %w", err)
			}

			for _, table := range tables {
				_, err = client.Fields(cmd.Context(), args[0], table.ID)
				if err != nil {
					return fmt.Errorf("failed to load fields of %s: %w", table.Name, err)
				}
			}

			stats := client.CacheStats()

			return render(cmd, stats, []string{"Property", "Value"}, [][]string{
				{"Tables", strconv.Itoa(stats.Tables)},
				{"Fields", strconv.Itoa(stats.Fields)},
				{"Updated At", stats.UpdatedAt.Format(time.RFC3339)},
			})
		},
	}
}

func newCacheInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [APP [TABLE]]",
		Short: "Tell running clients to drop cached metadata",
		Long: `Publish an invalidation on the NATS bus (QB_NATS_URL). Every subscribed
client drops the matching apps or tables and reloads them on next use.
Without arguments all cached metadata is dropped.`,
		Example: `  qb cache invalidate Sales Orders`,
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var scope quickbase.Scope
			if len(args) > 0 {
				scope.App = args[0]
			}

			if len(args) > 1 {
				scope.Table = args[1]
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			bus, err := invalidation.Connect(cfg.NATSURL, cfg.InvalidationSubject, nil)
			if err != nil {
				return err
			}

			defer func() { _ = bus.Close() }()

			err = bus.Publish(scope)
			if err != nil {
				return err
			}

			err = bus.Flush(constants.ShortHTTPTimeout)
			if err != nil {
				return err
			}

			result := map[string]string{"scope": scope.String(), "subject": bus.Subject()}

			return render(cmd, result, []string{"Property", "Value"}, [][]string{
				{"Scope", scope.String()},
				{"Subject", bus.Subject()},
			})
		},
	}
}
