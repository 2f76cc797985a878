package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// NewAttachmentsCommand creates the attachments command
func NewAttachmentsCommand() *cobra.Command {
	var (
		dir       string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "attachments APP TABLE [FIELD]",
		Short: "List or download file attachments",
		Long: `Without FIELD, list the file attachment fields of TABLE. With FIELD, list
the current file on every matching record, or download them with --dir.
Files already present in the directory are skipped unless --overwrite is set.`,
		Example: `  qb attachments Sales Orders
  qb attachments Sales Orders Invoice --eq Status=Closed
  qb attachments Sales Orders Invoice --dir ./invoices`,
		Args: cobra.RangeArgs(2, 3),
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

			if len(args) == 2 {
				fields, err := client.AttachmentFields(cmd.Context(), args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to list attachment fields: %w", err)
				}

				rows := make([][]string, 0, len(fields))
				for _, field := range fields {
					rows = append(rows, []string{strconv.Itoa(field.ID), field.Label})
				}

				return render(cmd, fields, []string{"ID", "Label"}, rows)
			}

			if dir == "" {
				attachments, err := client.Attachments(cmd.Context(), args[0], args[1], args[2], where)
				if err != nil {
					return fmt.Errorf("failed to list attachments: %w", err)
				}

				rows := make([][]string, 0, len(attachments))
				for _, attachment := range attachments {
					rows = append(rows, []string{
						strconv.Itoa(attachment.RecordID),
						attachment.FileName,
						strconv.Itoa(attachment.Version),
						attachment.URL,
					})
				}

				return render(cmd, attachments, []string{"Record", "File", "Version", "URL"}, rows)
			}

			results, err := client.DownloadAttachments(cmd.Context(), args[0], args[1], quickbase.AttachmentOptions{
				Field:     args[2],
				Dir:       dir,
				Where:     where,
				Overwrite: overwrite,
			})
			if err != nil {
				return fmt.Errorf("failed to download attachments: %w", err)
			}

			return render(cmd, results, []string{"Record", "File", "Status"}, downloadRows(results))
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "download the files into this directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace files that already exist")
	addFilterFlags(cmd)

	return cmd
}

func downloadRows(results []quickbase.AttachmentDownload) [][]string {
	rows := make([][]string, 0, len(results))

	for _, result := range results {
		status := "downloaded"

		switch {
		case result.Error != "":
			status = "failed: " + result.Error
		case result.Skipped:
			status = "skipped"
		}

		rows = append(rows, []string{strconv.Itoa(result.RecordID), result.Path, status})
	}

	return rows
}
