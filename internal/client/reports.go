package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	internalhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

type formulaRequest struct {
	From     string `json:"from"`
	Formula  string `json:"formula"`
	RecordID int    `json:"rid,omitempty"`
}

type formulaResponse struct {
	Result *string `json:"result"`
}

// Reports implements quickbase.ReportsClient.Reports.
func (c *Client) Reports(ctx context.Context, app, table string) ([]quickbase.Report, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, "reports", url.Values{"tableId": []string{descriptor.ID}})
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	var reports []quickbase.Report

	err = json.Unmarshal(resp.Body, &reports)
	if err == nil {
		return reports, nil
	}

	// Some realms wrap the list in an object.
	var wrapped struct {
		Reports []quickbase.Report `json:"reports"`
	}

	err = resp.Decode(&wrapped)
	if err != nil {
		return nil, err
	}

	return wrapped.Reports, nil
}

// GetReport implements quickbase.ReportsClient.GetReport.
func (c *Client) GetReport(ctx context.Context, app, table, reportID string) (*quickbase.Report, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, constants.ErrReportIDRequired
	}

	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, "reports/"+url.PathEscape(reportID), url.Values{"tableId": []string{descriptor.ID}})
	if err != nil {
		return nil, fmt.Errorf("getting report %s: %w", reportID, err)
	}

	var report quickbase.Report

	err = resp.Decode(&report)
	if err != nil {
		return nil, err
	}

	return &report, nil
}

// RunReport implements quickbase.ReportsClient.RunReport. Rows are keyed by
// the labels the report returns.
func (c *Client) RunReport(ctx context.Context, app, table, reportID string, skip, top int) (*quickbase.QueryResult, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, constants.ErrReportIDRequired
	}

	if skip < 0 || top < 0 || top > constants.MaxPageSize {
		return nil, constants.ErrInvalidPageSize
	}

	snapshot, err := c.snapshot(ctx, app, table)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"tableId": []string{snapshot.Table().ID},
		"skip":    []string{strconv.Itoa(skip)},
	}

	if top > 0 {
		params.Set("top", strconv.Itoa(top))
	}

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodPost,
		Path:   "reports/" + url.PathEscape(reportID) + "/run",
		Query:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("running report %s: %w", reportID, err)
	}

	var decoded queryResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return nil, err
	}

	return decoded.result(snapshot.Table().ID, "", snapshot), nil
}

// RunFormula implements quickbase.ReportsClient.RunFormula.
func (c *Client) RunFormula(ctx context.Context, app, table, formula string, recordID int) (string, error) {
	if strings.TrimSpace(formula) == "" {
		return "", constants.ErrFormulaRequired
	}

	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return "", err
	}

	request := formulaRequest{From: descriptor.ID, Formula: formula}
	if recordID > 0 {
		request.RecordID = recordID
	}

	resp, err := c.httpClient.Post(ctx, "formula/run", request)
	if err != nil {
		return "", fmt.Errorf("running formula: %w", err)
	}

	var decoded formulaResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return "", err
	}

	if decoded.Result == nil {
		return "", nil
	}

	return *decoded.Result, nil
}
