package metadata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fivetwenty-io/qbclient/internal/auth"
	qbhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIFetcher(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/tables":
			assert.Equal(t, salesAppID, r.URL.Query().Get("appId"))
			_, _ = w.Write([]byte(`[{"id":"bqorders1","name":"Orders","alias":"_DBID_ORDERS","keyFieldId":3,"nextRecordId":42}]`))
		case "/fields":
			if r.URL.Query().Get("tableId") == "bqbroken" {
				_, _ = w.Write([]byte(`{"unexpected":"object"}`))

				return
			}

			_, _ = w.Write([]byte(`[{"id":3,"label":"Record ID#","fieldType":"recordid"},{"id":6,"label":"Status","fieldType":"text"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher := metadata.NewAPIFetcher(qbhttp.NewClient(server.URL, auth.NewUserTokenManager("token")))
	ctx := context.Background()

	tables, err := fetcher.FetchTables(ctx, salesAppID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, quickbase.TableDescriptor{
		AppID:        salesAppID,
		Name:         "Orders",
		ID:           ordersTable,
		Alias:        "_DBID_ORDERS",
		KeyFieldID:   3,
		NextRecordID: 42,
	}, tables[0])

	fields, err := fetcher.FetchFields(ctx, ordersTable)
	require.NoError(t, err)
	assert.Equal(t, []quickbase.FieldDescriptor{
		{TableID: ordersTable, Label: "Record ID#", ID: 3, Type: "recordid"},
		{TableID: ordersTable, Label: "Status", ID: 6, Type: "text"},
	}, fields)

	_, err = fetcher.FetchFields(ctx, "bqbroken")
	transportErr := &quickbase.TransportError{}
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, quickbase.KindDecode, transportErr.Kind)
	assert.Equal(t, "/fields", transportErr.Path)
}
