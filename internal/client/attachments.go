package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	internalhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// AttachmentFields implements quickbase.AttachmentsClient.AttachmentFields.
func (c *Client) AttachmentFields(ctx context.Context, app, table string) ([]quickbase.FieldDescriptor, error) {
	fields, err := c.Fields(ctx, app, table)
	if err != nil {
		return nil, err
	}

	var files []quickbase.FieldDescriptor

	for _, field := range fields {
		if field.Type == constants.FileFieldType {
			files = append(files, field)
		}
	}

	return files, nil
}

// Attachments implements quickbase.AttachmentsClient.Attachments. Records
// with an empty attachment field are left out.
func (c *Client) Attachments(ctx context.Context, app, table, field string, where query.Expr) ([]quickbase.Attachment, error) {
	if strings.TrimSpace(field) == "" {
		return nil, constants.ErrAttachmentFieldRequired
	}

	var attachments []quickbase.Attachment

	err := c.withFreshMetadata(ctx, app, table, func(snapshot *metadata.Snapshot) error {
		fileField, err := snapshot.Field(field)
		if err != nil {
			return err
		}

		if fileField.Type != constants.FileFieldType {
			return fmt.Errorf("%w: %s is %s", constants.ErrNotAttachmentField, fileField.Label, fileField.Type)
		}

		rendered, err := query.Render(where, snapshot)
		if err != nil {
			return err
		}

		request := queryRequest{
			From:    snapshot.Table().ID,
			Select:  []int{constants.RecordIDFieldID, fileField.ID},
			Where:   rendered,
			SortBy:  []sortField{{FieldID: constants.RecordIDFieldID, Order: "ASC"}},
			Options: queryOptions{Top: constants.DefaultPageSize},
		}

		result, err := c.queryPages(ctx, snapshot, request)
		if err != nil {
			return err
		}

		attachments = collectAttachments(result.Records, snapshot.Label(constants.RecordIDFieldID), fileField.Label)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return attachments, nil
}

// DownloadAttachments implements quickbase.AttachmentsClient.DownloadAttachments.
// A failed file is recorded in its AttachmentDownload and the rest carry
// on; only listing failures and cancellation end the call with an error.
func (c *Client) DownloadAttachments(
	ctx context.Context, app, table string, opts quickbase.AttachmentOptions,
) ([]quickbase.AttachmentDownload, error) {
	attachments, err := c.Attachments(ctx, app, table, opts.Field, opts.Where)
	if err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	err = os.MkdirAll(dir, constants.DownloadDirPerm)
	if err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	results := make([]quickbase.AttachmentDownload, len(attachments))

	var group errgroup.Group

	group.SetLimit(c.concurrency)

	for i, attachment := range attachments {
		group.Go(func() error {
			results[i] = c.downloadAttachment(ctx, dir, attachment, opts.Overwrite)

			return nil
		})
	}

	_ = group.Wait()

	err = ctx.Err()
	if err != nil {
		return results, fmt.Errorf("downloading attachments: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("Attachments downloaded", map[string]interface{}{
			"table": table,
			"field": opts.Field,
			"files": len(results),
			"dir":   dir,
		})
	}

	return results, nil
}

func (c *Client) downloadAttachment(
	ctx context.Context, dir string, attachment quickbase.Attachment, overwrite bool,
) quickbase.AttachmentDownload {
	result := quickbase.AttachmentDownload{
		Attachment: attachment,
		Path:       filepath.Join(dir, attachmentFileName(attachment)),
	}

	if !overwrite {
		_, err := os.Stat(result.Path)
		if err == nil {
			result.Skipped = true

			return result
		}
	}

	content, err := c.fetchAttachment(ctx, attachment.URL)
	if err == nil {
		err = os.WriteFile(result.Path, content, constants.DownloadFilePerm)
	}

	if err != nil {
		result.Error = err.Error()

		if c.logger != nil {
			c.logger.Warn("Attachment download failed", map[string]interface{}{
				"record": attachment.RecordID,
				"file":   attachment.FileName,
				"error":  err,
			})
		}

		return result
	}

	result.Bytes = len(content)

	return result
}

// fetchAttachment downloads one file. The API answers with the content
// base64 encoded; a body that is not base64 is returned as is.
func (c *Client) fetchAttachment(ctx context.Context, link string) ([]byte, error) {
	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method:  http.MethodGet,
		Path:    c.httpClient.RelativePath(link),
		Headers: map[string]string{"Accept": "application/octet-stream"},
		Raw:     true,
	})
	if err != nil {
		return nil, err
	}

	encoded := bytes.TrimSpace(resp.Body)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))

	n, err := base64.StdEncoding.Decode(decoded, encoded)
	if err != nil {
		return resp.Body, nil
	}

	return decoded[:n], nil
}

func collectAttachments(records []quickbase.Record, idLabel, fileLabel string) []quickbase.Attachment {
	var attachments []quickbase.Attachment

	for _, record := range records {
		id, ok := record[idLabel].(float64)
		if !ok {
			continue
		}

		attachment, ok := parseAttachment(int(id), record[fileLabel])
		if ok {
			attachments = append(attachments, attachment)
		}
	}

	return attachments
}

// parseAttachment reads a file attachment cell, which carries the download
// URL and the list of stored versions.
func parseAttachment(recordID int, value any) (quickbase.Attachment, bool) {
	file, ok := value.(map[string]any)
	if !ok {
		return quickbase.Attachment{}, false
	}

	link, _ := file["url"].(string)
	if link == "" {
		return quickbase.Attachment{}, false
	}

	attachment := quickbase.Attachment{RecordID: recordID, URL: link}

	versions, _ := file["versions"].([]any)
	for _, entry := range versions {
		version, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		number, _ := version["versionNumber"].(float64)
		if int(number) < attachment.Version {
			continue
		}

		attachment.Version = int(number)
		attachment.FileName, _ = version["fileName"].(string)
	}

	if attachment.FileName == "" {
		attachment.FileName = path.Base(link)
	}

	return attachment, true
}

// attachmentFileName prefixes the stored name with the record ID so that
// files with the same name on different records do not collide.
func attachmentFileName(attachment quickbase.Attachment) string {
	name := filepath.Base(filepath.Clean("/" + attachment.FileName))
	if name == "/" || name == "." {
		name = "attachment"
	}

	return strconv.Itoa(attachment.RecordID) + "_" + name
}
