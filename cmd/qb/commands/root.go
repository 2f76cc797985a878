package commands

import (
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
)

// NewRootCommand creates the qb command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	root := &cobra.Command{
		Use:   "qb",
		Short: "Quickbase REST API CLI",
		Long: `A command-line interface for the Quickbase REST API.

Apps, tables and fields are addressed by name. Names are resolved to IDs
through a metadata cache, and requests are retried on rate limits and
transient server errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP(FlagConfig, "c", "", "config file (default is $HOME/.qb/config.yml)")
	flags.String(FlagEnvFile, ".env", "dotenv file with QB_ variables")
	flags.StringP(FlagOutput, "o", constants.FormatTable, "output format (table, json, yaml)")
	flags.BoolP(FlagVerbose, "v", false, "verbose output")

	root.AddCommand(NewVersionCommand(version, commit, date))
	root.AddCommand(NewConfigCommand())
	root.AddCommand(NewAppsCommand())
	root.AddCommand(NewTablesCommand())
	root.AddCommand(NewFieldsCommand())
	root.AddCommand(NewRelationshipsCommand())
	root.AddCommand(NewTableCommand())
	root.AddCommand(NewFieldCommand())
	root.AddCommand(NewRelationshipCommand())
	root.AddCommand(NewAttachmentsCommand())
	root.AddCommand(NewQueryCommand())
	root.AddCommand(NewUpsertCommand())
	root.AddCommand(NewDeleteCommand())
	root.AddCommand(NewExportCommand())
	root.AddCommand(NewReportsCommand())
	root.AddCommand(NewReportCommand())
	root.AddCommand(NewRunReportCommand())
	root.AddCommand(NewFormulaCommand())
	root.AddCommand(NewCacheCommand())

	return root
}
