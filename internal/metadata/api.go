package metadata

import (
	"context"
	"net/url"

	qbhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// APIFetcher loads metadata through the Quickbase REST API.
type APIFetcher struct {
	httpClient *qbhttp.Client
}

// NewAPIFetcher creates a fetcher on top of httpClient.
func NewAPIFetcher(httpClient *qbhttp.Client) *APIFetcher {
	return &APIFetcher{httpClient: httpClient}
}

// FetchTables lists the tables of appID.
func (f *APIFetcher) FetchTables(ctx context.Context, appID string) ([]quickbase.TableDescriptor, error) {
	resp, err := f.httpClient.Get(ctx, "tables", url.Values{"appId": []string{appID}})
	if err != nil {
		return nil, err
	}

	var tables []quickbase.TableDescriptor

	err = resp.Decode(&tables)
	if err != nil {
		return nil, err
	}

	for i := range tables {
		tables[i].AppID = appID
	}

	return tables, nil
}

// FetchFields lists the fields of tableID.
func (f *APIFetcher) FetchFields(ctx context.Context, tableID string) ([]quickbase.FieldDescriptor, error) {
	resp, err := f.httpClient.Get(ctx, "fields", url.Values{"tableId": []string{tableID}})
	if err != nil {
		return nil, err
	}

	var fields []quickbase.FieldDescriptor

	err = resp.Decode(&fields)
	if err != nil {
		return nil, err
	}

	for i := range fields {
		fields[i].TableID = tableID
	}

	return fields, nil
}
