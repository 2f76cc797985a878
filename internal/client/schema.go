package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	internalhttp "github.com/fivetwenty-io/qbclient/internal/http"
	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

type deleteTableResponse struct {
	DeletedTableID string `json:"deletedTableId"`
}

type deleteFieldsRequest struct {
	FieldIDs []int `json:"fieldIds"`
}

type deleteFieldsResponse struct {
	DeletedFieldIDs []int    `json:"deletedFieldIds"`
	Errors          []string `json:"errors"`
}

type summaryFieldRequest struct {
	SummaryFID       int    `json:"summaryFid,omitempty"`
	Label            string `json:"label,omitempty"`
	AccumulationType string `json:"accumulationType"`
	Where            string `json:"where,omitempty"`
}

type foreignKeyRequest struct {
	Label string `json:"label"`
}

type relationshipRequest struct {
	ParentTableID   string                `json:"parentTableId"`
	ForeignKeyField *foreignKeyRequest    `json:"foreignKeyField,omitempty"`
	LookupFieldIDs  []int                 `json:"lookupFieldIds,omitempty"`
	SummaryFields   []summaryFieldRequest `json:"summaryFields,omitempty"`
}

type deleteRelationshipResponse struct {
	RelationshipID int `json:"relationshipId"`
}

// CreateTable implements quickbase.SchemaClient.CreateTable.
func (c *Client) CreateTable(ctx context.Context, app string, opts quickbase.TableOptions) (quickbase.TableDescriptor, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return quickbase.TableDescriptor{}, constants.ErrTableNameRequired
	}

	descriptor, err := c.cache.ResolveApp(app)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodPost,
		Path:   "tables",
		Query:  url.Values{"appId": []string{descriptor.ID}},
		Body:   opts,
	})
	if err != nil {
		return quickbase.TableDescriptor{}, fmt.Errorf("creating table %s: %w", opts.Name, err)
	}

	var table quickbase.TableDescriptor

	err = resp.Decode(&table)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	table.AppID = descriptor.ID

	c.schemaChanged("Table created", quickbase.Scope{App: descriptor.ID}, table.ID)

	return table, nil
}

// UpdateTable implements quickbase.SchemaClient.UpdateTable.
func (c *Client) UpdateTable(ctx context.Context, app, table string, opts quickbase.TableOptions) (quickbase.TableDescriptor, error) {
	if opts.IsZero() {
		return quickbase.TableDescriptor{}, constants.ErrNothingToUpdate
	}

	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodPost,
		Path:   "tables/" + url.PathEscape(descriptor.ID),
		Query:  url.Values{"appId": []string{descriptor.AppID}},
		Body:   opts,
	})
	if err != nil {
		return quickbase.TableDescriptor{}, fmt.Errorf("updating table %s: %w", descriptor.Name, err)
	}

	var updated quickbase.TableDescriptor

	err = resp.Decode(&updated)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	updated.AppID = descriptor.AppID

	// Renames change name resolution for the whole app.
	c.schemaChanged("Table updated", quickbase.Scope{App: descriptor.AppID}, descriptor.ID)

	return updated, nil
}

// DeleteTable implements quickbase.SchemaClient.DeleteTable.
func (c *Client) DeleteTable(ctx context.Context, app, table string) (string, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodDelete,
		Path:   "tables/" + url.PathEscape(descriptor.ID),
		Query:  url.Values{"appId": []string{descriptor.AppID}},
	})
	if err != nil {
		return "", fmt.Errorf("deleting table %s: %w", descriptor.Name, err)
	}

	var decoded deleteTableResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return "", err
	}

	c.schemaChanged("Table deleted", quickbase.Scope{App: descriptor.AppID}, descriptor.ID)

	return decoded.DeletedTableID, nil
}

// CreateField implements quickbase.SchemaClient.CreateField.
func (c *Client) CreateField(ctx context.Context, app, table string, opts quickbase.FieldOptions) (quickbase.FieldDescriptor, error) {
	switch {
	case strings.TrimSpace(opts.Label) == "":
		return quickbase.FieldDescriptor{}, constants.ErrFieldLabelRequired
	case strings.TrimSpace(opts.Type) == "":
		return quickbase.FieldDescriptor{}, constants.ErrFieldTypeRequired
	}

	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return quickbase.FieldDescriptor{}, err
	}

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodPost,
		Path:   "fields",
		Query:  url.Values{"tableId": []string{descriptor.ID}},
		Body:   opts,
	})
	if err != nil {
		return quickbase.FieldDescriptor{}, fmt.Errorf("creating field %s: %w", opts.Label, err)
	}

	var field quickbase.FieldDescriptor

	err = resp.Decode(&field)
	if err != nil {
		return quickbase.FieldDescriptor{}, err
	}

	field.TableID = descriptor.ID

	c.schemaChanged("Field created", quickbase.Scope{App: descriptor.AppID, Table: descriptor.ID}, strconv.Itoa(field.ID))

	return field, nil
}

// DeleteFields implements quickbase.SchemaClient.DeleteFields. Fields the
// API refuses to delete, such as the built-in ones, are reported with
// ErrFieldsNotDeleted alongside the IDs that were removed.
func (c *Client) DeleteFields(ctx context.Context, app, table string, labels []string) ([]int, error) {
	if len(labels) == 0 {
		return nil, constants.ErrNoFieldsToDelete
	}

	snapshot, err := c.snapshot(ctx, app, table)
	if err != nil {
		return nil, err
	}

	request := deleteFieldsRequest{FieldIDs: make([]int, len(labels))}

	for i, label := range labels {
		request.FieldIDs[i], err = snapshot.FieldID(label)
		if err != nil {
			return nil, err
		}
	}

	descriptor := snapshot.Table()

	resp, err := c.httpClient.Do(ctx, &internalhttp.Request{
		Method: http.MethodDelete,
		Path:   "fields",
		Query:  url.Values{"tableId": []string{descriptor.ID}},
		Body:   request,
	})
	if err != nil {
		return nil, fmt.Errorf("deleting fields: %w", err)
	}

	var decoded deleteFieldsResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return nil, err
	}

	c.schemaChanged("Fields deleted", quickbase.Scope{App: descriptor.AppID, Table: descriptor.ID}, descriptor.ID)

	if len(decoded.Errors) > 0 {
		return decoded.DeletedFieldIDs, fmt.Errorf("%w: %s", constants.ErrFieldsNotDeleted, strings.Join(decoded.Errors, "; "))
	}

	return decoded.DeletedFieldIDs, nil
}

// CreateRelationship implements quickbase.SchemaClient.CreateRelationship.
// Lookup fields are resolved on the parent, summary fields on the child.
func (c *Client) CreateRelationship(
	ctx context.Context, app, table string, opts quickbase.RelationshipOptions,
) (*quickbase.Relationship, error) {
	if strings.TrimSpace(opts.Parent) == "" {
		return nil, constants.ErrParentTableRequired
	}

	child, err := c.snapshot(ctx, app, table)
	if err != nil {
		return nil, err
	}

	parent, err := c.snapshot(ctx, app, opts.Parent)
	if err != nil {
		return nil, err
	}

	request, err := buildRelationship(parent, child, opts)
	if err != nil {
		return nil, err
	}

	childID := child.Table().ID

	resp, err := c.httpClient.Post(ctx, "tables/"+url.PathEscape(childID)+"/relationship", request)
	if err != nil {
		return nil, fmt.Errorf("creating relationship: %w", err)
	}

	var relationship quickbase.Relationship

	err = resp.Decode(&relationship)
	if err != nil {
		return nil, err
	}

	// The parent gains summary fields and the child gains the reference
	// and lookup fields.
	appID := child.Table().AppID
	c.schemaChanged("Relationship created", quickbase.Scope{App: appID, Table: childID}, childID)
	c.cache.Invalidate(quickbase.Scope{App: appID, Table: parent.Table().ID})

	return &relationship, nil
}

// DeleteRelationship implements quickbase.SchemaClient.DeleteRelationship.
// The relationship is named by its reference field, whose ID is also the
// relationship ID.
func (c *Client) DeleteRelationship(ctx context.Context, app, table, foreignKey string) (int, error) {
	descriptor, err := c.cache.ResolveTable(ctx, app, table)
	if err != nil {
		return 0, err
	}

	field, err := c.cache.ResolveField(ctx, descriptor, foreignKey)
	if err != nil {
		return 0, err
	}

	path := "tables/" + url.PathEscape(descriptor.ID) + "/relationship/" + strconv.Itoa(field.ID)

	resp, err := c.httpClient.Delete(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("deleting relationship %s: %w", foreignKey, err)
	}

	var decoded deleteRelationshipResponse

	err = resp.Decode(&decoded)
	if err != nil {
		return 0, err
	}

	// Lookup and summary fields disappear from both tables.
	c.schemaChanged("Relationship deleted", quickbase.Scope{App: descriptor.AppID}, descriptor.ID)

	return decoded.RelationshipID, nil
}

func (c *Client) schemaChanged(message string, scope quickbase.Scope, id string) {
	c.cache.Invalidate(scope)

	if c.logger != nil {
		c.logger.Info(message, map[string]interface{}{
			"id":          id,
			"invalidated": scope.String(),
		})
	}
}

func buildRelationship(parent, child *metadata.Snapshot, opts quickbase.RelationshipOptions) (relationshipRequest, error) {
	request := relationshipRequest{ParentTableID: parent.Table().ID}

	if opts.ForeignKeyLabel != "" {
		request.ForeignKeyField = &foreignKeyRequest{Label: opts.ForeignKeyLabel}
	}

	for _, label := range opts.LookupFields {
		fid, err := parent.FieldID(label)
		if err != nil {
			return relationshipRequest{}, err
		}

		request.LookupFieldIDs = append(request.LookupFieldIDs, fid)
	}

	for _, summary := range opts.SummaryFields {
		entry := summaryFieldRequest{
			Label:            summary.Label,
			AccumulationType: strings.ToUpper(summary.Accumulation),
		}

		if summary.Field != "" {
			fid, err := child.FieldID(summary.Field)
			if err != nil {
				return relationshipRequest{}, err
			}

			entry.SummaryFID = fid
		}

		if summary.Where != nil {
			where, err := query.Render(summary.Where, child)
			if err != nil {
				return relationshipRequest{}, err
			}

			entry.Where = where
		}

		request.SummaryFields = append(request.SummaryFields, entry)
	}

	return request, nil
}
