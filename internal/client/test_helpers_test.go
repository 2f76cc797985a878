package client

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fivetwenty-io/qbclient/internal/auth"
	internalhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
)

const (
	testAppID   = "bqsales01"
	testTableID = "bqorders1"
)

// fakeRealm is an in-memory Quickbase realm with one app and one table.
type fakeRealm struct {
	mutex sync.Mutex

	fields      []map[string]any
	records     int
	pageLimit   int
	failQueries int
	upsertCode  int
	upsertBody  string
	wrapReports bool
	// shortPages caps the rows returned for a query starting at a given skip.
	shortPages map[int]int
	fileField  bool
	// formulaBody replaces the formula/run answer when set.
	formulaBody string

	calls    map[string]int
	requests map[string][]map[string]any
	queries  map[string][]string
	inFlight int
	peak     int
}

func newFakeRealm() *fakeRealm {
	return &fakeRealm{
		fields: []map[string]any{
			{"id": 3, "label": "Record ID#", "fieldType": "recordid"},
			{"id": 6, "label": "Status", "fieldType": "text"},
			{"id": 7, "label": "Date", "fieldType": "date"},
			{"id": 8, "label": "Amount", "fieldType": "currency"},
		},
		records:    3,
		pageLimit:  1000,
		upsertCode: http.StatusOK,
		calls:      map[string]int{},
		requests:   map[string][]map[string]any{},
		queries:    map[string][]string{},
	}
}

func (f *fakeRealm) addField(id int, label string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fields = append(f.fields, map[string]any{"id": id, "label": label, "fieldType": "text"})
}

// addFileField adds the Invoice attachment field. Record 1 holds two
// versions, record 2 is empty and record 3 points at a missing file.
func (f *fakeRealm) addFileField() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fileField = true
	f.fields = append(f.fields, map[string]any{"id": 9, "label": "Invoice", "fieldType": "file"})
}

func (f *fakeRealm) count(key string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.calls[key]
}

func (f *fakeRealm) bodies(key string) []map[string]any {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]map[string]any(nil), f.requests[key]...)
}

func (f *fakeRealm) rawQueries(key string) []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]string(nil), f.queries[key]...)
}

func (f *fakeRealm) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	f.mutex.Lock()
	f.calls[key]++
	f.queries[key] = append(f.queries[key], r.URL.RawQuery)
	if body != nil {
		f.requests[key] = append(f.requests[key], body)
	}
	f.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch key {
	case "GET /tables":
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": testTableID, "name": "Orders", "keyFieldId": 3},
			{"id": "bqcust001", "name": "Customers", "keyFieldId": 3},
		})
	case "GET /fields":
		f.mutex.Lock()
		fields := append([]map[string]any(nil), f.fields...)
		f.mutex.Unlock()

		writeJSON(w, http.StatusOK, fields)
	case "POST /records/query":
		f.serveQuery(w, body)
	case "POST /records":
		f.mutex.Lock()
		code, payload := f.upsertCode, f.upsertBody
		f.mutex.Unlock()

		w.WriteHeader(code)
		_, _ = w.Write([]byte(payload))
	case "DELETE /records":
		writeJSON(w, http.StatusOK, map[string]any{"numberDeleted": 2})
	case "GET /tables/" + testTableID + "/relationships":
		writeJSON(w, http.StatusOK, map[string]any{
			"relationships": []map[string]any{{
				"id":              1,
				"parentTableId":   "bqcust001",
				"childTableId":    testTableID,
				"isCrossApp":      false,
				"foreignKeyField": map[string]any{"id": 10, "label": "Related Customer"},
			}},
		})
	case "GET /reports":
		reports := []map[string]any{
			{"id": "1", "name": "List All", "type": "table"},
			{"id": "5", "name": "Open Orders", "type": "table", "description": "Orders not yet shipped"},
		}
		if f.wrapReports {
			writeJSON(w, http.StatusOK, map[string]any{"reports": reports})

			return
		}

		writeJSON(w, http.StatusOK, reports)
	case "POST /reports/5/run":
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"3": map[string]any{"value": 2}, "6": map[string]any{"value": "Open"}},
			},
			"fields": []map[string]any{
				{"id": 3, "label": "Record ID#", "type": "recordid"},
				{"id": 6, "label": "Status", "type": "text"},
			},
			"metadata": map[string]any{"totalRecords": 1, "numRecords": 1, "numFields": 2, "skip": 0},
		})
	case "GET /reports/5":
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        "5",
			"name":      "Open Orders",
			"type":      "table",
			"usedCount": 12,
			"query": map[string]any{
				"tableId": testTableID,
				"filter":  "{'6'.EX.'Open'}",
				"fields":  []int{3, 6},
			},
		})
	case "POST /formula/run":
		f.mutex.Lock()
		payload := f.formulaBody
		f.mutex.Unlock()

		if payload != "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(payload))

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"result": "Open!"})
	default:
		if !f.serveSchema(w, key, body) && !f.serveFile(w, r.URL.Path) {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found", "description": key})
		}
	}
}

func (f *fakeRealm) serveSchema(w http.ResponseWriter, key string, body map[string]any) bool {
	switch key {
	case "POST /tables":
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          "bqnew0001",
			"name":        body["name"],
			"description": body["description"],
		})
	case "POST /tables/" + testTableID:
		writeJSON(w, http.StatusOK, map[string]any{"id": testTableID, "name": body["name"], "keyFieldId": 3})
	case "DELETE /tables/" + testTableID:
		writeJSON(w, http.StatusOK, map[string]any{"deletedTableId": testTableID})
	case "POST /fields":
		writeJSON(w, http.StatusOK, map[string]any{"id": 12, "label": body["label"], "fieldType": body["fieldType"]})
	case "DELETE /fields":
		deleted := []int{}
		failures := []string{}

		ids, _ := body["fieldIds"].([]any)
		for _, id := range ids {
			if toInt(id) <= 5 {
				failures = append(failures, "Field "+strconv.Itoa(toInt(id))+" is a built-in field and cannot be deleted")

				continue
			}

			deleted = append(deleted, toInt(id))
		}

		writeJSON(w, http.StatusOK, map[string]any{"deletedFieldIds": deleted, "errors": failures})
	case "POST /tables/" + testTableID + "/relationship":
		writeJSON(w, http.StatusOK, map[string]any{
			"id":              14,
			"parentTableId":   body["parentTableId"],
			"childTableId":    testTableID,
			"isCrossApp":      false,
			"foreignKeyField": map[string]any{"id": 14, "label": "Related Customer", "type": "numeric"},
			"lookupFields":    []map[string]any{{"id": 15, "label": "Customer - Status", "type": "text"}},
		})
	case "DELETE /tables/" + testTableID + "/relationship/10":
		writeJSON(w, http.StatusOK, map[string]any{"relationshipId": 10})
	default:
		return false
	}

	return true
}

func (f *fakeRealm) serveFile(w http.ResponseWriter, path string) bool {
	if path != "/files/"+testTableID+"/1/9/2" {
		return false
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(base64.StdEncoding.EncodeToString([]byte("invoice for order 1"))))

	return true
}

func (f *fakeRealm) serveQuery(w http.ResponseWriter, body map[string]any) {
	f.mutex.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}

	failing := f.failQueries > 0
	if failing {
		f.failQueries--
	}

	total, limit := f.records, f.pageLimit
	options, _ := body["options"].(map[string]any)
	skip := toInt(options["skip"])
	short, isShort := f.shortPages[skip]
	withFile := f.fileField && selects(body, 9)
	f.mutex.Unlock()

	defer func() {
		f.mutex.Lock()
		f.inFlight--
		f.mutex.Unlock()
	}()

	if failing {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Bad Request", "description": "Field 9 does not exist"})

		return
	}

	time.Sleep(5 * time.Millisecond)

	top := toInt(options["top"])

	if top == 0 || top > limit {
		top = limit
	}

	if isShort && short < top {
		top = short
	}

	fields := []map[string]any{
		{"id": 3, "label": "Record ID#", "type": "recordid"},
		{"id": 6, "label": "Status", "type": "text"},
	}

	if withFile {
		fields = append(fields, map[string]any{"id": 9, "label": "Invoice", "type": "file"})
	}

	data := []map[string]any{}
	for id := skip + 1; id <= total && len(data) < top; id++ {
		row := map[string]any{
			"3": map[string]any{"value": id},
			"6": map[string]any{"value": "Open"},
		}

		if withFile {
			row["9"] = map[string]any{"value": fileCell(id)}
		}

		data = append(data, row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   data,
		"fields": fields,
		"metadata": map[string]any{
			"totalRecords": total,
			"numRecords":   len(data),
			"numFields":    2,
			"skip":         skip,
		},
	})
}

func fileCell(id int) map[string]any {
	switch id {
	case 1:
		return map[string]any{
			"url": "/files/" + testTableID + "/1/9/2",
			"versions": []map[string]any{
				{"versionNumber": 1, "fileName": "draft.pdf"},
				{"versionNumber": 2, "fileName": "invoice.pdf"},
			},
		}
	case 2:
		return map[string]any{"url": "", "versions": []map[string]any{}}
	default:
		return map[string]any{
			"url":      "/files/" + testTableID + "/" + strconv.Itoa(id) + "/9/1",
			"versions": []map[string]any{{"versionNumber": 1, "fileName": "invoice.pdf"}},
		}
	}
}

func selects(body map[string]any, fid int) bool {
	selected, _ := body["select"].([]any)
	for _, value := range selected {
		if toInt(value) == fid {
			return true
		}
	}

	return false
}

func toInt(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case string:
		n, _ := strconv.Atoi(typed)

		return n
	default:
		return 0
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// NewTestClient creates a client backed by realm. Retries are fast so that
// tests exercising transient failures stay quick.
func NewTestClient(t *testing.T, realm *fakeRealm) *Client {
	t.Helper()

	server := httptest.NewServer(realm)
	t.Cleanup(server.Close)

	httpClient := internalhttp.NewClient(server.URL, auth.NewUserTokenManager("b12345_token"),
		internalhttp.WithRealm("example.quickbase.com"),
		internalhttp.WithRetryConfig(2, time.Millisecond, 5*time.Millisecond),
	)

	cache := metadata.New(metadata.NewAPIFetcher(httpClient), map[string]string{"Sales": testAppID})

	return newClient(httpClient, cache, nil, 3)
}
