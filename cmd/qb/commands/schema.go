package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewTableCommand creates the table command
func NewTableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Create, update and delete tables",
	}

	cmd.AddCommand(newTableCreateCommand())
	cmd.AddCommand(newTableUpdateCommand())
	cmd.AddCommand(newTableDeleteCommand())

	return cmd
}

func addTableFlags(cmd *cobra.Command, opts *quickbase.TableOptions) {
	cmd.Flags().StringVar(&opts.Description, "description", "", "table description")
	cmd.Flags().StringVar(&opts.SingularRecordName, "singular", "", "name of a single record")
	cmd.Flags().StringVar(&opts.PluralRecordName, "plural", "", "name of several records")
}

func newTableCreateCommand() *cobra.Command {
	var opts quickbase.TableOptions

	cmd := &cobra.Command{
		Use:     "create APP NAME",
		Short:   "Create a table",
		Example: `  qb table create Sales Invoices --description "Customer invoices"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			opts.Name = args[1]

			table, err := client.CreateTable(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}

			return render(cmd, table, []string{"Name", "ID", "App"}, [][]string{{table.Name, table.ID, table.AppID}})
		},
	}

	addTableFlags(cmd, &opts)

	return cmd
}

func newTableUpdateCommand() *cobra.Command {
	var opts quickbase.TableOptions

	cmd := &cobra.Command{
		Use:     "update APP TABLE",
		Short:   "Rename a table or change its properties",
		Example: `  qb table update Sales Orders --name "Purchase Orders"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			table, err := client.UpdateTable(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return fmt.Errorf("failed to update table: %w", err)
			}

			return render(cmd, table, []string{"Name", "ID", "App"}, [][]string{{table.Name, table.ID, table.AppID}})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "new table name")
	addTableFlags(cmd, &opts)

	return cmd
}

func newTableDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:     "delete APP TABLE",
		Short:   "Delete a table and all of its records",
		Example: `  qb table delete Sales Invoices --yes`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return constants.ErrDeleteNotConfirmed
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			deleted, err := client.DeleteTable(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to delete table: %w", err)
			}

			result := map[string]string{"deletedTableId": deleted}

			return render(cmd, result, []string{"Deleted Table"}, [][]string{{deleted}})
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the deletion")

	return cmd
}

// NewFieldCommand creates the field command
func NewFieldCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Create and delete fields",
	}

	cmd.AddCommand(newFieldCreateCommand())
	cmd.AddCommand(newFieldDeleteCommand())

	return cmd
}

func newFieldCreateCommand() *cobra.Command {
	var opts quickbase.FieldOptions

	cmd := &cobra.Command{
		Use:     "create APP TABLE LABEL",
		Short:   "Create a field",
		Example: `  qb field create Sales Orders Priority --type text`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			opts.Label = args[2]

			field, err := client.CreateField(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return fmt.Errorf("failed to create field: %w", err)
			}

			return render(cmd, field, []string{"ID", "Label", "Type"},
				[][]string{{strconv.Itoa(field.ID), field.Label, field.Type}})
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "text", "field type")
	cmd.Flags().StringVar(&opts.FieldHelp, "help-text", "", "help text shown to users")
	cmd.Flags().BoolVar(&opts.AddToForms, "add-to-forms", false, "add the field to the table's forms")

	return cmd
}

func newFieldDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:     "delete APP TABLE LABEL...",
		Short:   "Delete fields by label",
		Example: `  qb field delete Sales Orders Priority Notes --yes`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return constants.ErrDeleteNotConfirmed
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			deleted, err := client.DeleteFields(cmd.Context(), args[0], args[1], args[2:])
			if err != nil {
				return fmt.Errorf("failed to delete fields: %w", err)
			}

			rows := make([][]string, 0, len(deleted))
			for _, id := range deleted {
				rows = append(rows, []string{strconv.Itoa(id)})
			}

			return render(cmd, map[string][]int{"deletedFieldIds": deleted}, []string{"Deleted Field"}, rows)
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the deletion")

	return cmd
}

// NewRelationshipCommand creates the relationship command
func NewRelationshipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relationship",
		Short: "Create and delete table relationships",
	}

	cmd.AddCommand(newRelationshipCreateCommand())
	cmd.AddCommand(newRelationshipDeleteCommand())

	return cmd
}

func newRelationshipCreateCommand() *cobra.Command {
	var (
		opts      quickbase.RelationshipOptions
		summaries []string
	)

	cmd := &cobra.Command{
		Use:   "create APP CHILD PARENT",
		Short: "Make CHILD a child table of PARENT",
		Example: `  qb relationship create Sales Orders Customers --foreign-key "Related Customer" \
    --lookup Name --summary "Order Total=SUM:Amount" --summary "Orders=COUNT"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range summaries {
				summary, err := parseSummaryFlag(raw)
				if err != nil {
					return err
				}

				opts.SummaryFields = append(opts.SummaryFields, summary)
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			opts.Parent = args[2]

			relationship, err := client.CreateRelationship(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return fmt.Errorf("failed to create relationship: %w", err)
			}

			return render(cmd, relationship, []string{"ID", "Parent", "Child", "Foreign Key", "Cross App"},
				relationshipRows([]quickbase.Relationship{*relationship}))
		},
	}

	cmd.Flags().StringVar(&opts.ForeignKeyLabel, "foreign-key", "", "label of the new reference field")
	cmd.Flags().StringArrayVar(&opts.LookupFields, "lookup", nil, "parent field to look up (repeatable)")
	cmd.Flags().StringArrayVar(&summaries, "summary", nil,
		"parent summary field as label=ACCUMULATION[:child field] (repeatable)")

	return cmd
}

func newRelationshipDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:     "delete APP CHILD FOREIGN_KEY",
		Short:   "Delete the relationship behind a reference field",
		Example: `  qb relationship delete Sales Orders "Related Customer" --yes`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return constants.ErrDeleteNotConfirmed
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			id, err := client.DeleteRelationship(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("failed to delete relationship: %w", err)
			}

			return render(cmd, map[string]int{"relationshipId": id}, []string{"Deleted Relationship"},
				[][]string{{strconv.Itoa(id)}})
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the deletion")

	return cmd
}

// parseSummaryFlag reads label=ACCUMULATION[:field].
func parseSummaryFlag(raw string) (quickbase.SummaryField, error) {
	label, spec, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(label) == "" || strings.TrimSpace(spec) == "" {
		return quickbase.SummaryField{}, fmt.Errorf("%w: %q", constants.ErrInvalidSummaryFlag, raw)
	}

	accumulation, field, _ := strings.Cut(spec, ":")

	return quickbase.SummaryField{
		Label:        strings.TrimSpace(label),
		Accumulation: strings.ToUpper(strings.TrimSpace(accumulation)),
		Field:        strings.TrimSpace(field),
	}, nil
}
