package observer

import (
	"reflect"
	"time"

	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/record"
)

// Context is the mutable state every sync-phase (ring 0-6) observer
// receives. It is owned by one pipeline invocation; writers are
// serialized by ring/observer ordering, so it needs no internal locking
// (spec §5).
type Context struct {
	Operation     record.Operation
	SchemaName    string
	Schema        SchemaDefinition
	Records       []*record.StatefulRecord
	Filter        *filter.FilterData
	CurrentRing   Ring
	Errors        []error
	Warnings      []error
	PipelineStart time.Time

	Store    StoreHandle
	Identity IdentityProvider

	metadata map[reflect.Type]any
}

// NewContext builds the context the pipeline threads through every ring.
func NewContext(operation record.Operation, schemaName string, schema SchemaDefinition, records []*record.StatefulRecord, fd *filter.FilterData, now time.Time, store StoreHandle, identity IdentityProvider) *Context {
	return &Context{
		Operation:     operation,
		SchemaName:    schemaName,
		Schema:        schema,
		Records:       records,
		Filter:        fd,
		PipelineStart: now,
		Store:         store,
		Identity:      identity,
		metadata:      make(map[reflect.Type]any),
	}
}

// SetMetadata stores v in the typed metadata bag, keyed by its runtime
// type. There is exactly one slot per type (spec §9's "typed metadata
// bag"): a second SetMetadata call with the same type overwrites it.
func SetMetadata[T any](c *Context, v T) {
	c.metadata[reflect.TypeOf(v)] = v
}

// GetMetadata retrieves the slot for T, if any observer has set one.
func GetMetadata[T any](c *Context) (T, bool) {
	var zero T
	v, ok := c.metadata[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// AddError appends a fatal error for the current ring.
func (c *Context) AddError(err error) {
	c.Errors = append(c.Errors, err)
}

// AddWarning appends a non-fatal observation (used by ring 6 onward).
func (c *Context) AddWarning(err error) {
	c.Warnings = append(c.Warnings, err)
}

// Snapshot is the read-only view handed to ring 7-9 observers. It
// exposes accessors only — there is no way to mutate a Snapshot, which
// is what makes the async phase safe to run concurrently with the
// caller's continuation (spec §5).
type Snapshot struct {
	operation  record.Operation
	schemaName string
	schema     SchemaDefinition
	records    []*record.StatefulRecord
	metadata   map[reflect.Type]any
}

func (s Snapshot) Operation() record.Operation        { return s.operation }
func (s Snapshot) SchemaName() string                 { return s.schemaName }
func (s Snapshot) Schema() SchemaDefinition            { return s.schema }
func (s Snapshot) Records() []*record.StatefulRecord   { return s.records }

// SnapshotMetadata retrieves the slot for T from a Snapshot's metadata.
func SnapshotMetadata[T any](s Snapshot) (T, bool) {
	var zero T
	v, ok := s.metadata[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Snapshot freezes the context's records and metadata for the async
// phase. Records are shallow-copied so async observers reading fields
// cannot race with a later invocation's Context (there is none — the
// sync phase has already returned — but copying keeps the contract
// explicit rather than relying on happens-before from channel dispatch).
func (c *Context) Snapshot() Snapshot {
	records := make([]*record.StatefulRecord, len(c.Records))
	copy(records, c.Records)

	metadata := make(map[reflect.Type]any, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}

	return Snapshot{
		operation:  c.Operation,
		schemaName: c.SchemaName,
		schema:     c.Schema,
		records:    records,
		metadata:   metadata,
	}
}
