package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewReportsCommand creates the reports command
func NewReportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reports APP TABLE",
		Short:   "List the saved reports of a table",
		Example: `  qb reports Sales Orders`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			reports, err := client.Reports(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}

			rows := make([][]string, 0, len(reports))
			for _, report := range reports {
				rows = append(rows, []string{report.ID, report.Name, report.Type, report.Description})
			}

			return render(cmd, reports, []string{"ID", "Name", "Type", "Description"}, rows)
		},
	}
}

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "report APP TABLE REPORT_ID",
		Short:   "Show the definition of a saved report",
		Example: `  qb report Sales Orders 5`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			report, err := client.GetReport(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("failed to get report: %w", err)
			}

			filter := ""
			if report.Query != nil {
				filter = report.Query.Filter
			}

			return render(cmd, report, []string{"ID", "Name", "Type", "Filter", "Used"},
				[][]string{{report.ID, report.Name, report.Type, filter, strconv.Itoa(report.UsedCount)}})
		},
	}
}

// NewRunReportCommand creates the run-report command
func NewRunReportCommand() *cobra.Command {
	var skip, top int

	cmd := &cobra.Command{
		Use:     "run-report APP TABLE REPORT_ID",
		Short:   "Run a saved report",
		Example: `  qb run-report Sales Orders 5 --top 100`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			result, err := client.RunReport(cmd.Context(), args[0], args[1], args[2], skip, top)
			if err != nil {
				return fmt.Errorf("failed to run report: %w", err)
			}

			header, rows := recordRows(result.Fields, result.Records)

			return render(cmd, result, header, rows)
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "number of records to skip")
	cmd.Flags().IntVar(&top, "top", 0, "maximum number of records to return")

	return cmd
}

// NewFormulaCommand creates the formula command
func NewFormulaCommand() *cobra.Command {
	var recordID int

	cmd := &cobra.Command{
		Use:     "formula APP TABLE FORMULA",
		Short:   "Evaluate a formula",
		Example: `  qb formula Sales Orders 'ToText([Amount] * 2)' --rid 12`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			value, err := client.RunFormula(cmd.Context(), args[0], args[1], args[2], recordID)
			if err != nil {
				return fmt.Errorf("failed to run formula: %w", err)
			}

			result := map[string]string{"result": value}

			return render(cmd, result, []string{"Result"}, [][]string{{value}})
		},
	}

	cmd.Flags().IntVar(&recordID, "rid", 0, "record ID to evaluate the formula against")

	return cmd
}
