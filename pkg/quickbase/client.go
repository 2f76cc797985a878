package quickbase

import (
	"context"

	"github.com/fivetwenty-io/qbclient/pkg/query"
)

// MetadataClient resolves names to Quickbase IDs through the metadata cache.
type MetadataClient interface {
	Apps() []AppDescriptor
	Tables(ctx context.Context, app string) ([]TableDescriptor, error)
	Fields(ctx context.Context, app, table string) ([]FieldDescriptor, error)
	ResolveTable(ctx context.Context, app, table string) (TableDescriptor, error)
	ResolveField(ctx context.Context, app, table, label string) (FieldDescriptor, error)
	Invalidate(scope Scope)
	CacheStats() CacheStats
}

// RecordsClient reads and writes table records.
type RecordsClient interface {
	// Where renders expr against the table's current fields.
	Where(ctx context.Context, app, table string, expr query.Expr) (string, error)
	Query(ctx context.Context, app, table string, opts QueryOptions) (*QueryResult, error)
	// QueryAll fetches every page of a query concurrently.
	QueryAll(ctx context.Context, app, table string, opts QueryOptions) (*QueryResult, error)
	Upsert(ctx context.Context, app, table string, opts UpsertOptions) (*UpsertResult, error)
	// Delete removes records matching expr. A nil expr is rejected.
	Delete(ctx context.Context, app, table string, expr query.Expr) (int, error)
	Relationships(ctx context.Context, app, table string) ([]Relationship, error)
}

// ReportsClient runs saved reports and formulas.
type ReportsClient interface {
	Reports(ctx context.Context, app, table string) ([]Report, error)
	GetReport(ctx context.Context, app, table, reportID string) (*Report, error)
	// RunReport runs a saved report. Top 0 uses the server default.
	RunReport(ctx context.Context, app, table, reportID string, skip, top int) (*QueryResult, error)
	// RunFormula evaluates formula against the table, in the context of
	// recordID when it is positive.
	RunFormula(ctx context.Context, app, table, formula string, recordID int) (string, error)
}

// SchemaClient changes tables, fields and relationships. Every change
// invalidates the cached metadata it affects.
type SchemaClient interface {
	CreateTable(ctx context.Context, app string, opts TableOptions) (TableDescriptor, error)
	UpdateTable(ctx context.Context, app, table string, opts TableOptions) (TableDescriptor, error)
	// DeleteTable removes the table and its records, returning its ID.
	DeleteTable(ctx context.Context, app, table string) (string, error)
	CreateField(ctx context.Context, app, table string, opts FieldOptions) (FieldDescriptor, error)
	// DeleteFields removes fields by label and returns the deleted IDs.
	DeleteFields(ctx context.Context, app, table string, labels []string) ([]int, error)
	// CreateRelationship makes table a child of opts.Parent.
	CreateRelationship(ctx context.Context, app, table string, opts RelationshipOptions) (*Relationship, error)
	// DeleteRelationship removes the relationship whose reference field on
	// table is labelled foreignKey.
	DeleteRelationship(ctx context.Context, app, table, foreignKey string) (int, error)
}

// AttachmentsClient lists and downloads file attachments.
type AttachmentsClient interface {
	// AttachmentFields returns the file attachment fields of table.
	AttachmentFields(ctx context.Context, app, table string) ([]FieldDescriptor, error)
	// Attachments lists the current file of field on every matching record.
	Attachments(ctx context.Context, app, table, field string, where query.Expr) ([]Attachment, error)
	// DownloadAttachments writes the matching attachments to opts.Dir.
	DownloadAttachments(ctx context.Context, app, table string, opts AttachmentOptions) ([]AttachmentDownload, error)
}

// Client is the Quickbase API client.
type Client interface {
	MetadataClient
	RecordsClient
	ReportsClient
	SchemaClient
	AttachmentsClient

	// Close releases the invalidation bus connection, if any.
	Close() error
}
