package commands_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/qbclient/cmd/qb/commands"
)

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// fakeAPI serves the Quickbase endpoints the commands use and records the
// request bodies it receives.
type fakeAPI struct {
	mutex  sync.Mutex
	bodies map[string][]map[string]any
}

func (f *fakeAPI) received(key string) []map[string]any {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.bodies[key]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mutex.Lock()
	if f.bodies == nil {
		f.bodies = map[string][]map[string]any{}
	}

	f.bodies[key] = append(f.bodies[key], body)
	f.mutex.Unlock()

	if key == "GET /files/bqorders1/1/9/1" {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 invoice"))))

		return
	}

	var payload any

	switch key {
	case "GET /tables":
		payload = []map[string]any{
			{"id": "bqorders1", "name": "Orders", "alias": "_DBID_ORDERS", "keyFieldId": 3},
			{"id": "bqcust001", "name": "Customers", "keyFieldId": 3},
		}
	case "GET /fields":
		payload = []map[string]any{
			{"id": 3, "label": "Record ID#", "fieldType": "recordid"},
			{"id": 6, "label": "Status", "fieldType": "text"},
			{"id": 7, "label": "Date", "fieldType": "date"},
			{"id": 9, "label": "Invoice", "fieldType": "file"},
			{"id": 10, "label": "Related Customer", "fieldType": "numeric"},
		}
	case "POST /records/query":
		if selectsFile(body) {
			payload = attachmentQuery()

			break
		}

		payload = map[string]any{
			"data": []map[string]any{
				{"3": map[string]any{"value": 1}, "6": map[string]any{"value": "Open"}},
				{"3": map[string]any{"value": 2}, "6": map[string]any{"value": "Open"}},
			},
			"fields": []map[string]any{
				{"id": 3, "label": "Record ID#", "type": "recordid"},
				{"id": 6, "label": "Status", "type": "text"},
			},
			"metadata": map[string]any{"totalRecords": 2, "numRecords": 2, "numFields": 2, "skip": 0},
		}
	case "POST /records":
		payload = map[string]any{
			"data":     []any{},
			"metadata": map[string]any{"createdRecordIds": []int{4}, "updatedRecordIds": []int{1}, "totalNumberOfRecordsProcessed": 2},
		}
	case "DELETE /records":
		payload = map[string]any{"numberDeleted": 3}
	case "GET /tables/bqorders1/relationships":
		payload = map[string]any{"relationships": []map[string]any{{
			"id":              1,
			"parentTableId":   "bqcust001",
			"childTableId":    "bqorders1",
			"foreignKeyField": map[string]any{"id": 10, "label": "Related Customer"},
		}}}
	case "GET /reports":
		payload = []map[string]any{{"id": "5", "name": "Open Orders", "type": "table"}}
	case "POST /reports/5/run":
		payload = map[string]any{
			"data":     []map[string]any{{"6": map[string]any{"value": "Open"}}},
			"fields":   []map[string]any{{"id": 6, "label": "Status", "type": "text"}},
			"metadata": map[string]any{"totalRecords": 1, "numRecords": 1, "numFields": 1, "skip": 0},
		}
	case "POST /formula/run":
		payload = map[string]any{"result": "42"}
	case "GET /reports/5":
		payload = map[string]any{
			"id":        "5",
			"name":      "Open Orders",
			"type":      "table",
			"usedCount": 3,
			"query":     map[string]any{"tableId": "bqorders1", "filter": "{'6'.EX.'Open'}"},
		}
	case "POST /tables":
		payload = map[string]any{"id": "bqnew0001", "name": body["name"]}
	case "POST /tables/bqorders1":
		payload = map[string]any{"id": "bqorders1", "name": body["name"]}
	case "DELETE /tables/bqorders1":
		payload = map[string]any{"deletedTableId": "bqorders1"}
	case "POST /fields":
		payload = map[string]any{"id": 12, "label": body["label"], "fieldType": body["fieldType"]}
	case "DELETE /fields":
		payload = map[string]any{"deletedFieldIds": body["fieldIds"], "errors": []string{}}
	case "POST /tables/bqorders1/relationship":
		payload = map[string]any{
			"id":              14,
			"parentTableId":   body["parentTableId"],
			"childTableId":    "bqorders1",
			"foreignKeyField": map[string]any{"id": 14, "label": "Related Customer"},
		}
	case "DELETE /tables/bqorders1/relationship/10":
		payload = map[string]any{"relationshipId": 10}
	default:
		w.WriteHeader(http.StatusNotFound)
		payload = map[string]any{"message": "Not Found", "description": key}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// selectsFile reports whether body is the Record ID# and Invoice query the
// attachments command sends.
func selectsFile(body map[string]any) bool {
	selected, _ := body["select"].([]any)

	return len(selected) == 2 && selected[1] == float64(9)
}

func attachmentQuery() map[string]any {
	return map[string]any{
		"data": []map[string]any{{
			"3": map[string]any{"value": 1},
			"9": map[string]any{"value": map[string]any{
				"url":      "/files/bqorders1/1/9/1",
				"versions": []map[string]any{{"versionNumber": 1, "fileName": "invoice.pdf"}},
			}},
		}},
		"fields": []map[string]any{
			{"id": 3, "label": "Record ID#", "type": "recordid"},
			{"id": 9, "label": "Invoice", "type": "file"},
		},
		"metadata": map[string]any{"totalRecords": 1, "numRecords": 1, "numFields": 2, "skip": 0},
	}
}

// newTestEnv starts a fake API and writes a config file pointing at it.
func newTestEnv(t *testing.T) (*fakeAPI, string) {
	t.Helper()

	api := &fakeAPI{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "config.yml")
	content := "realm_hostname: example.quickbase.com\n" +
		"user_token: b12345_secrettoken\n" +
		"base_url: " + server.URL + "\n" +
		"retry_max_attempts: 1\n" +
		"log_level: error\n" +
		"apps:\n  - name: Sales\n    id: bqsales01\n"

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return api, path
}

// run executes the qb command tree with args and returns stdout.
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	root := commands.NewRootCommand("1.2.3", "abc123", "2026-01-02")

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(bytes.NewReader(nil))
	root.SetArgs(append([]string{"--config", configPath, "--env-file", ""}, args...))

	err := root.ExecuteContext(context.Background())

	return stdout.String(), err
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
