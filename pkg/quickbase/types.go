package quickbase

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/fivetwenty-io/qbclient/pkg/query"
)

// AppDescriptor identifies a configured application.
type AppDescriptor struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id"   yaml:"id"`
}

// TableDescriptor identifies a table inside an app.
type TableDescriptor struct {
	AppID        string `json:"appId"                  yaml:"app_id"`
	Name         string `json:"name"                   yaml:"name"`
	ID           string `json:"id"                     yaml:"id"`
	Alias        string `json:"alias,omitempty"        yaml:"alias,omitempty"`
	Description  string `json:"description,omitempty"  yaml:"description,omitempty"`
	KeyFieldID   int    `json:"keyFieldId,omitempty"   yaml:"key_field_id,omitempty"`
	NextRecordID int    `json:"nextRecordId,omitempty" yaml:"next_record_id,omitempty"`
}

// FieldDescriptor identifies a field inside a table.
type FieldDescriptor struct {
	TableID string `json:"tableId"   yaml:"table_id"`
	Label   string `json:"label"     yaml:"label"`
	ID      int    `json:"id"        yaml:"id"`
	Type    string `json:"fieldType" yaml:"field_type"`
}

// FieldRef names a field by ID and label.
type FieldRef struct {
	ID    int    `json:"id"             yaml:"id"`
	Label string `json:"label"          yaml:"label"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Relationship describes a parent/child link between two tables.
type Relationship struct {
	ID            int        `json:"id"                      yaml:"id"`
	ParentTableID string     `json:"parentTableId"           yaml:"parent_table_id"`
	ChildTableID  string     `json:"childTableId"            yaml:"child_table_id"`
	IsCrossApp    bool       `json:"isCrossApp"              yaml:"is_cross_app"`
	ForeignKey    FieldRef   `json:"foreignKeyField"         yaml:"foreign_key_field"`
	LookupFields  []FieldRef `json:"lookupFields,omitempty"  yaml:"lookup_fields,omitempty"`
	SummaryFields []FieldRef `json:"summaryFields,omitempty" yaml:"summary_fields,omitempty"`
}

// SummaryField adds a summary of child records to the parent table.
type SummaryField struct {
	// Label names the new parent field.
	Label string
	// Accumulation is SUM, AVG, MAX, MIN, STD-DEV, COUNT, COMBINED-TEXT,
	// COMBINED-USER, LAST or FIRST.
	Accumulation string
	// Field is the child field label to summarize. COUNT leaves it empty.
	Field string
	// Where restricts the child records that are summarized.
	Where query.Expr
}

// RelationshipOptions describes a relationship to create on a child table.
type RelationshipOptions struct {
	// Parent is the parent table name or ID, in the same app.
	Parent string
	// ForeignKeyLabel names the new reference field. Empty uses the API default.
	ForeignKeyLabel string
	// LookupFields are parent field labels to look up into the child.
	LookupFields  []string
	SummaryFields []SummaryField
}

// TableOptions holds the properties of a table to create or update. Empty
// fields are left unchanged.
type TableOptions struct {
	Name               string `json:"name,omitempty"`
	Description        string `json:"description,omitempty"`
	SingularRecordName string `json:"singleRecordName,omitempty"`
	PluralRecordName   string `json:"pluralRecordName,omitempty"`
}

// IsZero reports whether no property is set.
func (o TableOptions) IsZero() bool {
	return o == TableOptions{}
}

// FieldOptions describes a field to create.
type FieldOptions struct {
	Label string `json:"label"`
	// Type is the Quickbase field type, such as text, numeric or file.
	Type       string `json:"fieldType"`
	FieldHelp  string `json:"fieldHelp,omitempty"`
	AddToForms bool   `json:"addToForms,omitempty"`
}

// Report describes a saved table report.
type Report struct {
	ID          string       `json:"id"                    yaml:"id"`
	Name        string       `json:"name"                  yaml:"name"`
	Type        string       `json:"type"                  yaml:"type"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	UsedLast    string       `json:"usedLast,omitempty"    yaml:"used_last,omitempty"`
	UsedCount   int          `json:"usedCount,omitempty"   yaml:"used_count,omitempty"`
	Query       *ReportQuery `json:"query,omitempty"       yaml:"query,omitempty"`
}

// ReportQuery is the saved query behind a report.
type ReportQuery struct {
	TableID string `json:"tableId"          yaml:"table_id"`
	Filter  string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Fields  []int  `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Attachment is one file stored in a file attachment field.
type Attachment struct {
	RecordID int    `json:"recordId" yaml:"record_id"`
	FileName string `json:"fileName" yaml:"file_name"`
	URL      string `json:"url"      yaml:"url"`
	Version  int    `json:"version"  yaml:"version"`
}

// AttachmentOptions selects the attachments DownloadAttachments fetches.
type AttachmentOptions struct {
	// Field is the label of a file attachment field.
	Field string
	// Dir receives the files. Empty uses the working directory.
	Dir string
	// Where filters records. Nil downloads from every record.
	Where query.Expr
	// Overwrite replaces files that already exist.
	Overwrite bool
}

// AttachmentDownload is the outcome for one attachment. Error is set when
// that file failed; the other downloads carry on.
type AttachmentDownload struct {
	Attachment `yaml:",inline"`

	Path    string `json:"path"              yaml:"path"`
	Bytes   int    `json:"bytes"             yaml:"bytes"`
	Skipped bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error   string `json:"error,omitempty"   yaml:"error,omitempty"`
}

// Scope selects cache entries to invalidate. The zero Scope selects
// everything; App alone selects an app; Table selects one table, by name or
// ID, optionally qualified by App.
type Scope struct {
	App   string `json:"app,omitempty"   yaml:"app,omitempty"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// String returns a human readable form of the scope.
func (s Scope) String() string {
	switch {
	case s.App == "" && s.Table == "":
		return "all"
	case s.Table == "":
		return "app " + s.App
	case s.App == "":
		return "table " + s.Table
	default:
		return "table " + s.App + "/" + s.Table
	}
}

// SortBy orders query results by a field label.
type SortBy struct {
	Label      string
	Descending bool
}

// QueryOptions controls a records query.
type QueryOptions struct {
	// Select lists field labels to return. Empty selects the table's fields.
	Select []string
	// Where filters records. Nil matches every record.
	Where query.Expr
	// SortBy orders the result.
	SortBy []SortBy
	// Skip and Top page through the result. Top 0 uses the server default.
	Skip int
	Top  int
}

// Record is a single row keyed by field label.
type Record map[string]any

// String returns the value of label formatted for display.
func (r Record) String(label string) string {
	value, ok := r[label]
	if !ok || value == nil {
		return ""
	}

	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}

		return string(encoded)
	}
}

// QueryMetadata is the paging information returned with a query.
type QueryMetadata struct {
	TotalRecords int `json:"totalRecords"  yaml:"total_records"`
	NumRecords   int `json:"numRecords"    yaml:"num_records"`
	NumFields    int `json:"numFields"     yaml:"num_fields"`
	Skip         int `json:"skip"          yaml:"skip"`
	Top          int `json:"top,omitempty" yaml:"top,omitempty"`
}

// QueryResult holds decoded rows and the rendered filter that produced them.
type QueryResult struct {
	Where    string            `json:"where"    yaml:"where"`
	Fields   []FieldDescriptor `json:"fields"   yaml:"fields"`
	Records  []Record          `json:"records"  yaml:"records"`
	Metadata QueryMetadata     `json:"metadata" yaml:"metadata"`
}

// UpsertOptions controls a records upsert.
type UpsertOptions struct {
	// Records are keyed by field label.
	Records []Record
	// MergeField is the label of the unique field used to match existing
	// records. Empty merges on the record ID.
	MergeField string
	// Return lists field labels to return for each processed record.
	Return []string
}

// UpsertResult is the outcome of an upsert. Partial is true when the API
// answered 207 and LineErrors is not empty.
type UpsertResult struct {
	CreatedRecordIDs              []int               `json:"createdRecordIds"              yaml:"created_record_ids"`
	UpdatedRecordIDs              []int               `json:"updatedRecordIds"              yaml:"updated_record_ids"`
	UnchangedRecordIDs            []int               `json:"unchangedRecordIds"            yaml:"unchanged_record_ids"`
	TotalNumberOfRecordsProcessed int                 `json:"totalNumberOfRecordsProcessed" yaml:"total_number_of_records_processed"`
	LineErrors                    map[string][]string `json:"lineErrors,omitempty"          yaml:"line_errors,omitempty"`
	Records                       []Record            `json:"records,omitempty"             yaml:"records,omitempty"`
	Partial                       bool                `json:"partial"                       yaml:"partial"`
}

// CacheStats reports metadata cache contents.
type CacheStats struct {
	Tables    int       `json:"tables"    yaml:"tables"`
	Fields    int       `json:"fields"    yaml:"fields"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}
