package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	var (
		dir          string
		selectLabels []string
	)

	cmd := &cobra.Command{
		Use:   "export APP TABLE",
		Short: "Export matching records to CSV",
		Long: `Fetch every record matching the filter flags, pages in parallel, and write
them to <dir>/<table>_<YYYY-MM-DD>.csv. No file is written when nothing matches.`,
		Example: `  qb export Sales Orders --after Date=2025-01-01 --dir ./exports`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := buildFilter(cmd)
			if err != nil {
				return err
			}

			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			table, err := client.ResolveTable(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			result, err := client.QueryAll(cmd.Context(), args[0], table.ID, quickbase.QueryOptions{
				Select: selectLabels,
				Where:  where,
			})
			if err != nil {
				return fmt.Errorf("failed to query records: %w", err)
			}

			var path string

			if len(result.Records) > 0 {
				path = filepath.Join(dir, exportName(table.Name, time.Now()))

				err = writeCSV(path, result)
				if err != nil {
					return err
				}
			}

			summary := map[string]any{"file": path, "records": len(result.Records)}

			return render(cmd, summary, []string{"Property", "Value"}, [][]string{
				{"File", orNotAvailable(path)},
				{"Records", fmt.Sprint(len(result.Records))},
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the CSV file to")
	cmd.Flags().StringArrayVar(&selectLabels, "select", nil, "field label to export (repeatable, default all fields)")
	addFilterFlags(cmd)

	return cmd
}

// exportName is the CSV file name for table on day.
func exportName(table string, day time.Time) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}

		return r
	}, table)

	return fmt.Sprintf("%s_%s.csv", name, day.Format(time.DateOnly))
}

func writeCSV(path string, result *quickbase.QueryResult) error {
	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	file, err := os.Create(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}

	defer func() { _ = file.Close() }()

	header, rows := recordRows(result.Fields, result.Records)

	writer := csv.NewWriter(file)

	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	err = writer.WriteAll(rows)
	if err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}

	return file.Close()
}
