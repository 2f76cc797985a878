package constants

import "errors"

// Configuration errors.
var (
	ErrRealmHostnameRequired = errors.New("realm hostname is required (QB_REALM_HOSTNAME)")
	ErrUserTokenRequired     = errors.New("user token is required (QB_REALM_API_KEY)")
	ErrInvalidAppIDs         = errors.New("invalid app ID mapping (QB_APP_IDS must be a JSON object)")
	ErrNoAppsConfigured      = errors.New("no apps configured, set QB_APP_IDS")
)

// Request errors.
var (
	ErrNoRecordsToUpsert = errors.New("no records to upsert")
	ErrDeleteNeedsFilter = errors.New("delete requires a filter expression")
	ErrInvalidPageSize   = errors.New("page size must be between 1 and 1000")
	ErrFormulaRequired   = errors.New("formula is required")
	ErrReportIDRequired  = errors.New("report ID is required")
)

// Schema errors.
var (
	ErrTableNameRequired   = errors.New("table name is required")
	ErrNothingToUpdate     = errors.New("no table properties to update")
	ErrFieldLabelRequired  = errors.New("field label is required")
	ErrFieldTypeRequired   = errors.New("field type is required")
	ErrNoFieldsToDelete    = errors.New("no fields to delete")
	ErrFieldsNotDeleted    = errors.New("some fields were not deleted")
	ErrParentTableRequired = errors.New("parent table is required")
)

// Attachment errors.
var (
	ErrAttachmentFieldRequired = errors.New("attachment field is required")
	ErrNotAttachmentField      = errors.New("field is not a file attachment field")
)

// CLI errors.
var (
	ErrInvalidFilterFlag  = errors.New("filter flags must have the form label=value")
	ErrUnknownOutput      = errors.New("unknown output format")
	ErrDeleteNotConfirmed = errors.New("delete not confirmed, pass --yes")
	ErrInvalidSortFlag    = errors.New("sort flags must have the form label or label:desc")
	ErrInvalidSummaryFlag = errors.New("summary flags must have the form label=ACCUMULATION[:field]")
)
