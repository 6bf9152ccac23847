// Package record implements StatefulRecord: the unit of work that flows
// through the observer pipeline (spec §3, §4.2). A record carries both the
// persisted snapshot it was loaded with and the in-flight modifications
// observers apply to it, and can derive a diff and a write plan from the
// two without any ring having to track deltas itself.
package record

import (
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// FieldMap is a field name to value mapping — the shape of a persisted row
// or an in-flight set of edits.
type FieldMap map[string]any

// Operation is the closed set of pipeline-level operations (spec §3).
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpRevert Operation = "revert"
	OpSelect Operation = "select"
)

// RecordOperation is the per-record lifecycle tag. NoChange and Enriched
// only ever appear on records produced by a Select.
type RecordOperation string

const (
	RecordCreate    RecordOperation = "create"
	RecordUpdate    RecordOperation = "update"
	RecordDelete    RecordOperation = "delete"
	RecordRevert    RecordOperation = "revert"
	RecordNoChange  RecordOperation = "no_change"
	RecordEnriched  RecordOperation = "enriched"
)

// ValidationStatus is a field-level validation verdict.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationWarning ValidationStatus = "warning"
)

// FieldValidation is one field's validation outcome, recorded by ring 1
// observers so later rings (and audit) don't need to re-run validation.
type FieldValidation struct {
	Status  ValidationStatus
	Message string
}

// SecurityCheck is a named boolean outcome recorded by ring 2 observers.
type SecurityCheck struct {
	Name    string
	Passed  bool
	Reason  string
}

// Metadata is the provenance and bookkeeping a record accumulates as it
// moves through the pipeline. It is never part of the diff.
type Metadata struct {
	APIChanges       map[string]struct{}
	ObserverChanges  map[string]string
	FieldValidations map[string]FieldValidation
	SecurityChecks   []SecurityCheck
	PipelineStart    time.Time
}

func newMetadata(now time.Time) Metadata {
	return Metadata{
		APIChanges:       make(map[string]struct{}),
		ObserverChanges:  make(map[string]string),
		FieldValidations: make(map[string]FieldValidation),
		PipelineStart:    now,
	}
}

// StatefulRecord is the pipeline's unit of work.
type StatefulRecord struct {
	ID       *string
	Original FieldMap
	Modified FieldMap
	Operation RecordOperation
	Metadata  Metadata
	Response  ResponseMetadata
}

// Create builds a new record for an Operation Create. original starts
// empty; it only becomes populated once ring 5 returns the inserted row.
func Create(payload FieldMap, now time.Time) *StatefulRecord {
	modified := make(FieldMap, len(payload))
	meta := newMetadata(now)
	for k, v := range payload {
		modified[k] = v
		meta.APIChanges[k] = struct{}{}
	}
	return &StatefulRecord{
		Original:  FieldMap{},
		Modified:  modified,
		Operation: RecordCreate,
		Metadata:  meta,
	}
}

// Existing builds a record for Update/Delete/Revert (or a materialized
// Select row) from a persisted snapshot plus caller-supplied changes. The
// id is derived from original["id"]; modified seeds as original merged
// with changes, and only the changed keys are marked api_changes.
func Existing(original FieldMap, changes FieldMap, operation RecordOperation, now time.Time) *StatefulRecord {
	snapshot := make(FieldMap, len(original))
	for k, v := range original {
		snapshot[k] = v
	}
	modified := make(FieldMap, len(original)+len(changes))
	for k, v := range original {
		modified[k] = v
	}
	meta := newMetadata(now)
	for k, v := range changes {
		modified[k] = v
		meta.APIChanges[k] = struct{}{}
	}
	rec := &StatefulRecord{
		Original:  snapshot,
		Modified:  modified,
		Operation: operation,
		Metadata:  meta,
	}
	if idVal, ok := original["id"]; ok {
		if idStr, ok := idVal.(string); ok && idStr != "" {
			rec.ID = &idStr
		}
	}
	return rec
}

// Pending builds a record for Update/Delete/Revert before ring 0 has run:
// only the id and the caller's changes are known. Ring 0's
// RecordPreloader populates Original via HydrateOriginal.
func Pending(id string, changes FieldMap, operation RecordOperation, now time.Time) *StatefulRecord {
	modified := make(FieldMap, len(changes))
	meta := newMetadata(now)
	for k, v := range changes {
		modified[k] = v
		meta.APIChanges[k] = struct{}{}
	}
	idCopy := id
	return &StatefulRecord{
		ID:        &idCopy,
		Modified:  modified,
		Operation: operation,
		Metadata:  meta,
	}
}

// HydrateOriginal populates Original from a preloaded row (ring 0) and
// merges any of its fields not already present in Modified — caller
// changes always win over the preloaded snapshot.
func (r *StatefulRecord) HydrateOriginal(original FieldMap) {
	snapshot := make(FieldMap, len(original))
	for k, v := range original {
		snapshot[k] = v
	}
	r.Original = snapshot
	if r.Modified == nil {
		r.Modified = FieldMap{}
	}
	for k, v := range original {
		if _, exists := r.Modified[k]; !exists {
			r.Modified[k] = v
		}
	}
}

// GetField reads the current (modified) value of a field.
func (r *StatefulRecord) GetField(field string) (any, bool) {
	v, ok := r.Modified[field]
	return v, ok
}

// SetField writes a field on the modified map, recording provenance.
// observerName == "" marks the write as caller/API-originated; any other
// value marks it as observer-originated. Last writer wins on the value,
// and provenance is always overwritten to the last writer (spec §3).
func (r *StatefulRecord) SetField(field string, value any, observerName string) {
	if r.Modified == nil {
		r.Modified = FieldMap{}
	}
	r.Modified[field] = value
	r.markProvenance(field, observerName)
}

// RemoveField deletes a field from the modified map, recording provenance.
func (r *StatefulRecord) RemoveField(field string, observerName string) {
	delete(r.Modified, field)
	r.markProvenance(field, observerName)
}

func (r *StatefulRecord) markProvenance(field, observerName string) {
	if observerName == "" {
		if r.Metadata.APIChanges == nil {
			r.Metadata.APIChanges = make(map[string]struct{})
		}
		r.Metadata.APIChanges[field] = struct{}{}
		return
	}
	if r.Metadata.ObserverChanges == nil {
		r.Metadata.ObserverChanges = make(map[string]string)
	}
	r.Metadata.ObserverChanges[field] = observerName
}

// FieldChangedByAPI reports whether the caller explicitly supplied field.
func (r *StatefulRecord) FieldChangedByAPI(field string) bool {
	_, ok := r.Metadata.APIChanges[field]
	return ok
}

// FieldChangedByObserver reports whether an observer last wrote field, and
// which one.
func (r *StatefulRecord) FieldChangedByObserver(field string) (string, bool) {
	name, ok := r.Metadata.ObserverChanges[field]
	return name, ok
}

// FieldChanged reports whether field's current value differs from its
// original snapshot (or is present in one but not the other).
func (r *StatefulRecord) FieldChanged(field string) bool {
	orig, hadOrig := r.Original[field]
	mod, hasMod := r.Modified[field]
	if hadOrig != hasMod {
		return true
	}
	if !hadOrig && !hasMod {
		return false
	}
	return !valuesEqual(orig, mod)
}

// RecordChanges is the diff between original and modified, computed on
// demand and never cached — it is always in sync with the record's
// current state.
type RecordChanges struct {
	Added          map[string]any
	ModifiedFields map[string]any
	Removed        map[string]struct{}
	HasChanges     bool
}

// CalculateChanges computes the diff described in spec §3. It is pure: it
// reads the record but never mutates it.
func (r *StatefulRecord) CalculateChanges() RecordChanges {
	changes := RecordChanges{
		Added:          make(map[string]any),
		ModifiedFields: make(map[string]any),
		Removed:        make(map[string]struct{}),
	}
	for field, v := range r.Modified {
		orig, ok := r.Original[field]
		if !ok {
			changes.Added[field] = v
			continue
		}
		if !valuesEqual(orig, v) {
			changes.ModifiedFields[field] = v
		}
	}
	for field := range r.Original {
		if _, ok := r.Modified[field]; !ok {
			changes.Removed[field] = struct{}{}
		}
	}
	changes.HasChanges = len(changes.Added) > 0 || len(changes.ModifiedFields) > 0 || len(changes.Removed) > 0
	return changes
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// SqlOperation is the write plan derived from a record (spec §3). Exactly
// one of the field groups below is meaningful, selected by Kind.
type SqlOperationKind string

const (
	SqlInsert     SqlOperationKind = "insert"
	SqlUpdate     SqlOperationKind = "update"
	SqlSoftDelete SqlOperationKind = "soft_delete"
	SqlRevert     SqlOperationKind = "revert"
	SqlNoOp       SqlOperationKind = "no_op"
)

type SqlOperation struct {
	Kind    SqlOperationKind
	Table   string
	ID      string
	Fields  []string
	Values  []any
	Updates map[string]any
}

// systemDenylist columns are never included in a generated Insert/Update —
// ring 5 (or the store adapter) owns them.
var systemDenylist = map[string]struct{}{
	"id":          {},
	"created_at":  {},
	"updated_at":  {},
	"trashed_at":  {},
	"deleted_at":  {},
	"access_read": {},
	"access_edit": {},
	"access_full": {},
	"access_deny": {},
}

// ToWritePlan derives the SqlOperation ring 5 will execute. Update/Delete/
// Revert require an id (MissingId otherwise); an Update with no diffed
// columns collapses to NoOp.
func (r *StatefulRecord) ToWritePlan(table string) (SqlOperation, error) {
	switch r.Operation {
	case RecordCreate:
		changes := r.CalculateChanges()
		fields := make([]string, 0, len(changes.Added))
		for f := range changes.Added {
			if _, denied := systemDenylist[f]; denied {
				continue
			}
			fields = append(fields, f)
		}
		sort.Strings(fields)
		values := make([]any, len(fields))
		for i, f := range fields {
			values[i] = changes.Added[f]
		}
		return SqlOperation{Kind: SqlInsert, Table: table, Fields: fields, Values: values}, nil

	case RecordUpdate:
		if r.ID == nil || *r.ID == "" {
			return SqlOperation{}, apperrors.ErrMissingID
		}
		changes := r.CalculateChanges()
		updates := make(map[string]any, len(changes.Added)+len(changes.ModifiedFields))
		for f, v := range changes.Added {
			if _, denied := systemDenylist[f]; denied {
				continue
			}
			updates[f] = v
		}
		for f, v := range changes.ModifiedFields {
			if _, denied := systemDenylist[f]; denied {
				continue
			}
			updates[f] = v
		}
		if len(updates) == 0 {
			return SqlOperation{Kind: SqlNoOp}, nil
		}
		return SqlOperation{Kind: SqlUpdate, Table: table, ID: *r.ID, Updates: updates}, nil

	case RecordDelete:
		if r.ID == nil || *r.ID == "" {
			return SqlOperation{}, apperrors.ErrMissingID
		}
		return SqlOperation{Kind: SqlSoftDelete, Table: table, ID: *r.ID}, nil

	case RecordRevert:
		if r.ID == nil || *r.ID == "" {
			return SqlOperation{}, apperrors.ErrMissingID
		}
		return SqlOperation{Kind: SqlRevert, Table: table, ID: *r.ID}, nil

	default:
		return SqlOperation{Kind: SqlNoOp}, nil
	}
}

// NewID generates a stable identifier for a record about to be inserted.
// The store adapter is free to ignore it and let the database default
// generate one instead; ring 5 decides which wins.
func NewID() string {
	return uuid.NewString()
}
