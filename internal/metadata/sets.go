package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// tableSet is the immutable cache entry for one app's tables.
type tableSet struct {
	appID      string
	tables     []quickbase.TableDescriptor
	byID       map[string]int
	byName     map[string][]int
	byFold     map[string][]int
	insertedAt time.Time
}

func newTableSet(appID string, tables []quickbase.TableDescriptor, now time.Time) *tableSet {
	set := &tableSet{
		appID:      appID,
		tables:     make([]quickbase.TableDescriptor, len(tables)),
		byID:       make(map[string]int, len(tables)),
		byName:     make(map[string][]int, len(tables)),
		byFold:     make(map[string][]int, len(tables)),
		insertedAt: now,
	}

	for i, table := range tables {
		table.AppID = appID
		set.tables[i] = table
		set.byID[table.ID] = i
		set.byName[table.Name] = append(set.byName[table.Name], i)
		set.byFold[fold(table.Name)] = append(set.byFold[fold(table.Name)], i)

		if table.Alias != "" {
			set.byFold[fold(table.Alias)] = append(set.byFold[fold(table.Alias)], i)
		}
	}

	return set
}

// lookup matches by ID, exact name, then unique case-insensitive name or alias.
func (s *tableSet) lookup(name string) (quickbase.TableDescriptor, error) {
	if i, ok := s.byID[name]; ok {
		return s.tables[i], nil
	}

	if matches := s.byName[name]; len(matches) == 1 {
		return s.tables[matches[0]], nil
	} else if len(matches) > 1 {
		return quickbase.TableDescriptor{}, s.lookupError(name, quickbase.ErrAmbiguousName)
	}

	matches := unique(s.byFold[fold(name)])

	switch len(matches) {
	case 1:
		return s.tables[matches[0]], nil
	case 0:
		return quickbase.TableDescriptor{}, s.lookupError(name, quickbase.ErrTableNotFound)
	default:
		return quickbase.TableDescriptor{}, s.lookupError(name, quickbase.ErrAmbiguousName)
	}
}

func (s *tableSet) lookupError(name string, cause error) *quickbase.LookupError {
	available := make([]string, len(s.tables))
	for i, table := range s.tables {
		available[i] = table.Name
	}

	sort.Strings(available)

	return &quickbase.LookupError{
		Kind:      quickbase.LookupTable,
		Name:      name,
		Scope:     "app " + s.appID,
		Available: available,
		Err:       cause,
	}
}

func (s *tableSet) list() []quickbase.TableDescriptor {
	return append([]quickbase.TableDescriptor(nil), s.tables...)
}

// fieldSet is the immutable cache entry for one table's fields. Labels that
// occur more than once are recorded in duplicates and never resolve.
type fieldSet struct {
	table      quickbase.TableDescriptor
	fields     []quickbase.FieldDescriptor
	byLabel    map[string]int
	byFold     map[string][]int
	duplicates map[string]bool
	insertedAt time.Time
}

func newFieldSet(table quickbase.TableDescriptor, fields []quickbase.FieldDescriptor, now time.Time) *fieldSet {
	set := &fieldSet{
		table:      table,
		fields:     make([]quickbase.FieldDescriptor, len(fields)),
		byLabel:    make(map[string]int, len(fields)),
		byFold:     make(map[string][]int, len(fields)),
		duplicates: make(map[string]bool),
		insertedAt: now,
	}

	for i, field := range fields {
		field.TableID = table.ID
		set.fields[i] = field

		if _, seen := set.byLabel[field.Label]; seen {
			set.duplicates[field.Label] = true
		}

		set.byLabel[field.Label] = i
		set.byFold[fold(field.Label)] = append(set.byFold[fold(field.Label)], i)
	}

	return set
}

// lookup matches the exact label, then a unique case-insensitive label. A
// numeric label is accepted as a field ID.
func (s *fieldSet) lookup(label string) (quickbase.FieldDescriptor, error) {
	if s.duplicates[label] {
		return quickbase.FieldDescriptor{}, s.lookupError(label, quickbase.ErrDuplicateLabel)
	}

	if i, ok := s.byLabel[label]; ok {
		return s.fields[i], nil
	}

	matches := s.byFold[fold(label)]

	switch len(matches) {
	case 1:
		return s.fields[matches[0]], nil
	case 0:
		if fid, err := strconv.Atoi(label); err == nil {
			for _, field := range s.fields {
				if field.ID == fid {
					return field, nil
				}
			}
		}

		return quickbase.FieldDescriptor{}, s.lookupError(label, quickbase.ErrFieldNotFound)
	default:
		return quickbase.FieldDescriptor{}, s.lookupError(label, quickbase.ErrAmbiguousName)
	}
}

func (s *fieldSet) lookupError(label string, cause error) *quickbase.LookupError {
	available := make([]string, 0, len(s.fields))
	for _, field := range s.fields {
		if !s.duplicates[field.Label] {
			available = append(available, field.Label)
		}
	}

	sort.Strings(available)

	scope := "table " + s.table.ID
	if s.table.Name != "" {
		scope = fmt.Sprintf("table %s (%s)", s.table.Name, s.table.ID)
	}

	return &quickbase.LookupError{
		Kind:      quickbase.LookupField,
		Name:      label,
		Scope:     scope,
		Available: available,
		Err:       cause,
	}
}

func (s *fieldSet) list() []quickbase.FieldDescriptor {
	return append([]quickbase.FieldDescriptor(nil), s.fields...)
}

// Snapshot is an immutable view of one table's fields. It implements
// query.FieldResolver.
type Snapshot struct {
	set *fieldSet
}

// Table returns the table the snapshot belongs to.
func (s *Snapshot) Table() quickbase.TableDescriptor {
	return s.set.table
}

// Fields returns a copy of the table's fields.
func (s *Snapshot) Fields() []quickbase.FieldDescriptor {
	return s.set.list()
}

// Field resolves label to its descriptor.
func (s *Snapshot) Field(label string) (quickbase.FieldDescriptor, error) {
	return s.set.lookup(label)
}

// FieldID resolves label to its field ID.
func (s *Snapshot) FieldID(label string) (int, error) {
	field, err := s.set.lookup(label)
	if err != nil {
		return 0, err
	}

	return field.ID, nil
}

// Label returns the label of field id, or "" when unknown.
func (s *Snapshot) Label(fid int) string {
	for _, field := range s.set.fields {
		if field.ID == fid {
			return field.Label
		}
	}

	return ""
}

// InsertedAt reports when the snapshot's fields were fetched.
func (s *Snapshot) InsertedAt() time.Time {
	return s.set.insertedAt
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func unique(indexes []int) []int {
	if len(indexes) < 2 {
		return indexes
	}

	seen := make(map[int]bool, len(indexes))
	out := indexes[:0:0]

	for _, i := range indexes {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}

	return out
}
