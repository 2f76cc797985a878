package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

type sortField struct {
	FieldID int    `json:"fieldId"`
	Order   string `json:"order"`
}

type queryOptions struct {
	Skip int `json:"skip"`
	Top  int `json:"top,omitempty"`
}

type queryRequest struct {
	From    string       `json:"from"`
	Select  []int        `json:"select,omitempty"`
	Where   string       `json:"where,omitempty"`
	SortBy  []sortField  `json:"sortBy,omitempty"`
	Options queryOptions `json:"options"`
}

type cell struct {
	Value any `json:"value"`
}

type responseField struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type queryResponse struct {
	Data     []map[string]cell       `json:"data"`
	Fields   []responseField         `json:"fields"`
	Metadata quickbase.QueryMetadata `json:"metadata"`
}

type upsertRequest struct {
	To             string            `json:"to"`
	Data           []map[string]cell `json:"data"`
	MergeFieldID   int               `json:"mergeFieldId,omitempty"`
	FieldsToReturn []int             `json:"fieldsToReturn,omitempty"`
}

type upsertResponse struct {
	Data     []map[string]cell      `json:"data"`
	Metadata quickbase.UpsertResult `json:"metadata"`
}

type deleteRequest struct {
	From  string `json:"from"`
	Where string `json:"where"`
}

type deleteResponse struct {
	NumberDeleted int `json:"numberDeleted"`
}

type relationshipsResponse struct {
	Relationships []quickbase.Relationship `json:"relationships"`
}

// Where implements quickbase.RecordsClient.Where.
func (c *Client) Where(ctx context.Context, app, table string, expr query.Expr) (string, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return "", err
	}

	snapshot, err := c.cache.Snapshot(ctx, descriptor)
	if err != nil {
		return "", err
	}

	return query.Render(expr, snapshot)
}

// Query implements quickbase.RecordsClient.Query.
func (c *Client) Query(ctx context.Context, app, table string, opts quickbase.QueryOptions) (*quickbase.QueryResult, error) {
	if opts.Skip < 0 || opts.Top < 0 || opts.Top > constants.MaxPageSize {
		return nil, constants.ErrInvalidPageSize
	}

	var result *quickbase.QueryResult

	err := c.withFreshMetadata(ctx, app, table, func(snapshot *metadata.Snapshot) error {
		request, err := buildQuery(snapshot, opts)
		if err != nil {
			return err
		}

		result, err = c.queryPage(ctx, snapshot, request)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// QueryAll implements quickbase.RecordsClient.QueryAll. The first page
// reports how many records match; the remaining pages are fetched
// concurrently and assembled in order.
func (c *Client) QueryAll(ctx context.Context, app, table string, opts quickbase.QueryOptions) (*quickbase.QueryResult, error) {
	if opts.Skip < 0 || opts.Top < 0 || opts.Top > constants.MaxPageSize {
		return nil, constants.ErrInvalidPageSize
	}

	if opts.Top == 0 {
		opts.Top = constants.DefaultPageSize
	}

	var result *quickbase.QueryResult

	err := c.withFreshMetadata(ctx, app, table, func(snapshot *metadata.Snapshot) error {
		request, err := buildQuery(snapshot, opts)
		if err != nil {
			return err
		}

		result, err = c.queryPages(ctx, snapshot, request)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) queryPages(ctx context.Context, snapshot *metadata.Snapshot, request queryRequest) (*quickbase.QueryResult, error) {
	first, err := c.queryPage(ctx, snapshot, request)
	if err != nil {
		return nil, err
	}

	pageSize := len(first.Records)
	start := request.Options.Skip + pageSize
	end := first.Metadata.TotalRecords

	if pageSize == 0 || start >= end {
		return first, nil
	}

	pageCount := (end - start + pageSize - 1) / pageSize
	pages := make([][]quickbase.Record, pageCount)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)

	for i := range pages {
		skip := start + i*pageSize
		count := min(pageSize, end-skip)

		group.Go(func() error {
			records, err := c.queryRange(groupCtx, snapshot, request, skip, count)
			if err != nil {
				return err
			}

			pages[i] = records

			return nil
		})
	}

	err = group.Wait()
	if err != nil {
		return nil, err
	}

	for _, records := range pages {
		first.Records = append(first.Records, records...)
	}

	if want := end - request.Options.Skip; len(first.Records) != want {
		return nil, fmt.Errorf("%w: assembled %d of %d records", quickbase.ErrIncompleteResult, len(first.Records), want)
	}

	first.Metadata.NumRecords = len(first.Records)
	first.Metadata.Top = 0

	if c.logger != nil {
		c.logger.Debug("Fetched all record pages", map[string]interface{}{
			"table":   request.From,
			"pages":   pageCount + 1,
			"records": len(first.Records),
		})
	}

	return first, nil
}

// queryRange fetches count records starting at skip. The API may answer
// with fewer rows than asked for, so a short page is followed by a request
// for the rest of the range. A page with no rows ends the range early and
// is reported as ErrIncompleteResult.
func (c *Client) queryRange(ctx context.Context, snapshot *metadata.Snapshot, request queryRequest, skip, count int) ([]quickbase.Record, error) {
	records := make([]quickbase.Record, 0, count)

	for len(records) < count {
		offset := skip + len(records)

		pageRequest := request
		pageRequest.Options = queryOptions{Skip: offset, Top: count - len(records)}

		page, err := c.queryPage(ctx, snapshot, pageRequest)
		if err != nil {
			return nil, fmt.Errorf("fetching records at offset %d: %w", offset, err)
		}

		if len(page.Records) == 0 {
			return nil, fmt.Errorf("%w: no records at offset %d, expected %d more",
				quickbase.ErrIncompleteResult, offset, count-len(records))
		}

		if len(page.Records) < pageRequest.Options.Top && c.logger != nil {
			c.logger.Debug("Short record page, fetching the rest", map[string]interface{}{
				"table":    request.From,
				"offset":   offset,
				"received": len(page.Records),
				"expected": pageRequest.Options.Top,
			})
		}

		records = append(records, page.Records...)
	}

	return records[:count], nil
}

func (c *Client) queryPage(ctx context.Context, snapshot *metadata.Snapshot, request queryRequest) (*quickbase.QueryResult, error) {
	resp, err := c.httpClient.Post(ctx, "records/query", request)
	if err != nil {
		return nil, err
	}

	var decoded queryResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return nil, err
	}

	return decoded.result(request.From, request.Where, snapshot), nil
}

// result converts a records or report response into rows keyed by label.
func (decoded *queryResponse) result(tableID, where string, snapshot *metadata.Snapshot) *quickbase.QueryResult {
	labels := make(map[string]string, len(decoded.Fields))
	fields := make([]quickbase.FieldDescriptor, len(decoded.Fields))

	for i, field := range decoded.Fields {
		key := strconv.Itoa(field.ID)
		labels[key] = field.Label
		fields[i] = quickbase.FieldDescriptor{TableID: tableID, Label: field.Label, ID: field.ID, Type: field.Type}
	}

	return &quickbase.QueryResult{
		Where:    where,
		Fields:   fields,
		Records:  decodeRecords(decoded.Data, labels, snapshot),
		Metadata: decoded.Metadata,
	}
}

// Upsert implements quickbase.RecordsClient.Upsert. A 207 answer yields a
// result with Partial set and the per-line errors.
func (c *Client) Upsert(ctx context.Context, app, table string, opts quickbase.UpsertOptions) (*quickbase.UpsertResult, error) {
	if len(opts.Records) == 0 {
		return nil, constants.ErrNoRecordsToUpsert
	}

	var result *quickbase.UpsertResult

	err := c.withFreshMetadata(ctx, app, table, func(snapshot *metadata.Snapshot) error {
		request, err := buildUpsert(snapshot, opts)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Post(ctx, "records", request)
		if err != nil {
			return err
		}

		var decoded upsertResponse

		err = resp.Decode(&decoded)
		if err != nil {
			return err
		}

		result = &decoded.Metadata
		result.Records = decodeRecords(decoded.Data, nil, snapshot)
		result.Partial = resp.StatusCode == constants.HTTPStatusMultiStatus || len(result.LineErrors) > 0

		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Partial && c.logger != nil {
		c.logger.Warn("Upsert partially failed", map[string]interface{}{
			"table":  table,
			"failed": len(result.LineErrors),
		})
	}

	return result, nil
}

// Delete implements quickbase.RecordsClient.Delete.
func (c *Client) Delete(ctx context.Context, app, table string, expr query.Expr) (int, error) {
	if expr == nil {
		return 0, constants.ErrDeleteNeedsFilter
	}

	deleted := 0

	err := c.withFreshMetadata(ctx, app, table, func(snapshot *metadata.Snapshot) error {
		where, err := query.Render(expr, snapshot)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.DeleteWithBody(ctx, "records", deleteRequest{From: snapshot.Table().ID, Where: where})
		if err != nil {
			return err
		}

		var decoded deleteResponse

		err = resp.Decode(&decoded)
		if err != nil {
			return err
		}

		deleted = decoded.NumberDeleted

		return nil
	})

	return deleted, err
}

// Relationships implements quickbase.RecordsClient.Relationships.
func (c *Client) Relationships(ctx context.Context, app, table string) ([]quickbase.Relationship, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return nil, err
	}

	path := "tables/" + url.PathEscape(descriptor.ID) + "/relationships"

	resp, err := c.httpClient.Get(ctx, path, url.Values{"appId": []string{descriptor.AppID}})
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	var decoded relationshipsResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return nil, err
	}

	return decoded.Relationships, nil
}

// withFreshMetadata runs call against the cached field snapshot of table.
// When the API rejects the call with 400 or 404 the cached metadata may be
// stale, so the table is invalidated and call runs once more.
func (c *Client) withFreshMetadata(ctx context.Context, app, table string, call func(*metadata.Snapshot) error) error {
	snapshot, err := c.snapshot(ctx, app, table)
	if err != nil {
		return err
	}

	err = call(snapshot)
	if !stale(err) {
		return err
	}

	if c.logger != nil {
		c.logger.Info("Retrying with fresh metadata", map[string]interface{}{
			"app":    app,
			"table":  table,
			"status": quickbase.StatusCode(err),
		})
	}

	c.cache.Invalidate(quickbase.Scope{App: app, Table: snapshot.Table().ID})

	snapshot, err = c.snapshot(ctx, app, table)
	if err != nil {
		return err
	}

	return call(snapshot)
}

func (c *Client) snapshot(ctx context.Context, app, table string) (*metadata.Snapshot, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return nil, err
	}

	return c.cache.Snapshot(ctx, descriptor)
}

func stale(err error) bool {
	transportErr := &quickbase.TransportError{}
	if !errors.As(err, &transportErr) || transportErr.Kind != quickbase.KindStatus {
		return false
	}

	return transportErr.StatusCode == http.StatusBadRequest || transportErr.StatusCode == http.StatusNotFound
}

func buildQuery(snapshot *metadata.Snapshot, opts quickbase.QueryOptions) (queryRequest, error) {
	where, err := query.Render(opts.Where, snapshot)
	if err != nil {
		return queryRequest{}, err
	}

	request := queryRequest{
		From:    snapshot.Table().ID,
		Where:   where,
		Options: queryOptions{Skip: opts.Skip, Top: opts.Top},
	}

	if len(opts.Select) == 0 {
		for _, field := range snapshot.Fields() {
			request.Select = append(request.Select, field.ID)
		}
	}

	for _, label := range opts.Select {
		fid, err := snapshot.FieldID(label)
		if err != nil {
			return queryRequest{}, err
		}

		request.Select = append(request.Select, fid)
	}

	for _, sortBy := range opts.SortBy {
		fid, err := snapshot.FieldID(sortBy.Label)
		if err != nil {
			return queryRequest{}, err
		}

		order := "ASC"
		if sortBy.Descending {
			order = "DESC"
		}

		request.SortBy = append(request.SortBy, sortField{FieldID: fid, Order: order})
	}

	return request, nil
}

func buildUpsert(snapshot *metadata.Snapshot, opts quickbase.UpsertOptions) (upsertRequest, error) {
	request := upsertRequest{
		To:   snapshot.Table().ID,
		Data: make([]map[string]cell, len(opts.Records)),
	}

	for i, record := range opts.Records {
		row := make(map[string]cell, len(record))

		for label, value := range record {
			fid, err := snapshot.FieldID(label)
			if err != nil {
				return upsertRequest{}, err
			}

			row[strconv.Itoa(fid)] = cell{Value: value}
		}

		request.Data[i] = row
	}

	if opts.MergeField != "" {
		fid, err := snapshot.FieldID(opts.MergeField)
		if err != nil {
			return upsertRequest{}, err
		}

		request.MergeFieldID = fid
	}

	for _, label := range opts.Return {
		fid, err := snapshot.FieldID(label)
		if err != nil {
			return upsertRequest{}, err
		}

		request.FieldsToReturn = append(request.FieldsToReturn, fid)
	}

	return request, nil
}

// decodeRecords keys each row by field label. Labels come from the response
// when it lists its fields and from the snapshot otherwise.
func decodeRecords(rows []map[string]cell, labels map[string]string, snapshot *metadata.Snapshot) []quickbase.Record {
	records := make([]quickbase.Record, len(rows))

	for i, row := range rows {
		record := make(quickbase.Record, len(row))

		for key, value := range row {
			label := labels[key]

			if label == "" {
				if fid, err := strconv.Atoi(key); err == nil {
					label = snapshot.Label(fid)
				}
			}

			if label == "" {
				label = key
			}

			record[label] = value.Value
		}

		records[i] = record
	}

	return records
}
