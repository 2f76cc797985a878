package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewQueryCommand creates the query command
//
//nolint:funlen // flag registration and output are kept together
func NewQueryCommand() *cobra.Command {
	var (
		selectLabels []string
		sortValues   []string
		top          int
		skip         int
		all          bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "query APP TABLE",
		Short: "Query table records",
		Long: `Query the records of a table. Fields are addressed by label and filters
are combined with AND unless --any is given.`,
		Example: `  qb query Sales Orders --eq Status=Open --after Date=2025-05-13
  qb query Sales Orders --select "Record ID#" --select Status --sort Date:desc --top 10
  qb query Sales Orders --eq Status=Open --eq Status=Pending --any --all -o json
  qb query Sales Orders --eq Status=Open --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, table := args[0], args[1]

			where, err := buildFilter(cmd)
			if err != nil {
				return err
			}

			sortBy, err := parseSort(sortValues)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			if dryRun {
				rendered, err := client.Where(cmd.Context(), app, table, where)
				if err != nil {
					return fmt.Errorf("failed to render filter: %w", err)
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)

				return err
			}

			opts := quickbase.QueryOptions{
				Select: selectLabels,
				Where:  where,
				SortBy: sortBy,
				Skip:   skip,
				Top:    top,
			}

			var result *quickbase.QueryResult
			if all {
				result, err = client.QueryAll(cmd.Context(), app, table, opts)
			} else {
				result, err = client.Query(cmd.Context(), app, table, opts)
			}

			if err != nil {
				return fmt.Errorf("failed to query records: %w", err)
			}

			header, rows := recordRows(result.Fields, result.Records)

			return render(cmd, result, header, rows)
		},
	}

	cmd.Flags().StringArrayVar(&selectLabels, "select", nil, "field label to return (repeatable, default all fields)")
	cmd.Flags().StringArrayVar(&sortValues, "sort", nil, "sort by label or label:desc (repeatable)")
	cmd.Flags().IntVar(&top, "top", 0, "maximum number of records to return")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of records to skip")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the rendered filter without querying")
	addFilterFlags(cmd)

	return cmd
}

// recordRows lays records out in field order for table output.
func recordRows(fields []quickbase.FieldDescriptor, records []quickbase.Record) ([]string, [][]string) {
	header := make([]string, len(fields))
	for i, field := range fields {
		header[i] = field.Label
	}

	rows := make([][]string, 0, len(records))

	for _, record := range records {
		row := make([]string, len(header))
		for i, label := range header {
			row[i] = record.String(label)
		}

		rows = append(rows, row)
	}

	return header, rows
}

// NewUpsertCommand creates the upsert command
func NewUpsertCommand() *cobra.Command {
	var (
		file       string
		mergeField string
		returned   []string
	)

	cmd := &cobra.Command{
		Use:   "upsert APP TABLE",
		Short: "Insert or update records",
		Long: `Insert or update records read from a JSON array of objects keyed by field
label. Records matching the merge field are updated, the rest are created.`,
		Example: `  qb upsert Sales Orders --file orders.json --merge-field "Order Number"
  echo '[{"Status":"Open","Amount":10}]' | qb upsert Sales Orders`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd, file)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			result, err := client.Upsert(cmd.Context(), args[0], args[1], quickbase.UpsertOptions{
				Records:    records,
				MergeField: mergeField,
				Return:     returned,
			})
			if err != nil {
				return fmt.Errorf("failed to upsert records: %w", err)
			}

			return render(cmd, result, []string{"Property", "Value"}, upsertRows(result))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with records, - for stdin")
	cmd.Flags().StringVar(&mergeField, "merge-field", "", "label of the unique field used to match existing records")
	cmd.Flags().StringArrayVar(&returned, "return", nil, "field label to return for each record (repeatable)")

	return cmd
}

func readRecords(cmd *cobra.Command, file string) ([]quickbase.Record, error) {
	var (
		data []byte
		err  error
	)

	if file == "-" {
		if in, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(in.Fd())) {
			return nil, fmt.Errorf("%w: pass --file or pipe JSON on stdin", constants.ErrNoRecordsToUpsert)
		}

		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	var records []quickbase.Record

	err = json.Unmarshal(data, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}

	return records, nil
}

func upsertRows(result *quickbase.UpsertResult) [][]string {
	rows := [][]string{
		{"Created", joinIDs(result.CreatedRecordIDs)},
		{"Updated", joinIDs(result.UpdatedRecordIDs)},
		{"Unchanged", joinIDs(result.UnchangedRecordIDs)},
		{"Processed", strconv.Itoa(result.TotalNumberOfRecordsProcessed)},
		{"Partial", strconv.FormatBool(result.Partial)},
	}

	for line, messages := range result.LineErrors {
		rows = append(rows, []string{"Line " + line, strings.Join(messages, "; ")})
	}

	return rows
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}

	return strings.Join(parts, ", ")
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:     "delete APP TABLE",
		Short:   "Delete records matching a filter",
		Long:    "Delete the records of a table matching the filter flags. A filter is required.",
		Example: `  qb delete Sales Orders --eq Status=Cancelled --yes`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := buildFilter(cmd)
			if err != nil {
				return err
			}

			if where == nil {
				return constants.ErrDeleteNeedsFilter
			}

			if !confirmed {
				return constants.ErrDeleteNotConfirmed
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			deleted, err := client.Delete(cmd.Context(), args[0], args[1], where)
			if err != nil {
				return fmt.Errorf("failed to delete records: %w", err)
			}

			result := map[string]int{"deleted": deleted}

			return render(cmd, result, []string{"Property", "Value"}, [][]string{{"Deleted", strconv.Itoa(deleted)}})
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the deletion")
	addFilterFlags(cmd)

	return cmd
}
