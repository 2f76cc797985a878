package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewAppsCommand creates the apps command
func NewAppsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List configured apps",
		Long:  "List the app names and IDs the client is configured with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			apps := client.Apps()
			if len(apps) == 0 {
				return constants.ErrNoAppsConfigured
			}

			rows := make([][]string, 0, len(apps))
			for _, app := range apps {
				rows = append(rows, []string{app.Name, app.ID})
			}

			return render(cmd, apps, []string{"Name", "ID"}, rows)
		},
	}
}

// NewTablesCommand creates the tables command
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "tables APP",
		Short:   "List the tables of an app",
		Example: `  qb tables Sales`,
		Args:    cobra.ExactArgs(1),
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

			rows := make([][]string, 0, len(tables))
			for _, table := range tables {
				rows = append(rows, []string{table.Name, table.ID, table.Alias, strconv.Itoa(table.KeyFieldID)})
			}

			return render(cmd, tables, []string{"Name", "ID", "Alias", "Key Field"}, rows)
		},
	}
}

// NewFieldsCommand creates the fields command
func NewFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "fields APP TABLE",
		Short:   "List the fields of a table",
		Example: `  qb fields Sales Orders`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			fields, err := client.Fields(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to list fields: %w", err)
			}

			rows := make([][]string, 0, len(fields))
			for _, field := range fields {
				rows = append(rows, []string{strconv.Itoa(field.ID), field.Label, field.Type})
			}

			return render(cmd, fields, []string{"ID", "Label", "Type"}, rows)
		},
	}
}

// NewRelationshipsCommand creates the relationships command
func NewRelationshipsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "relationships APP TABLE",
		Short:   "List the parent relationships of a table",
		Example: `  qb relationships Sales Orders`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			relationships, err := client.Relationships(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to list relationships: %w", err)
			}

			return render(cmd, relationships, []string{"ID", "Parent", "Child", "Foreign Key", "Cross App"},
				relationshipRows(relationships))
		},
	}
}

func relationshipRows(relationships []quickbase.Relationship) [][]string {
	rows := make([][]string, 0, len(relationships))
	for _, rel := range relationships {
		rows = append(rows, []string{
			strconv.Itoa(rel.ID),
			rel.ParentTableID,
			rel.ChildTableID,
			fmt.Sprintf("%s (%d)", rel.ForeignKey.Label, rel.ForeignKey.ID),
			strconv.FormatBool(rel.IsCrossApp),
		})
	}

	return rows
}
