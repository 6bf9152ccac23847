// Package observer implements the ten-ring pipeline (spec §4.3, §5) that
// every mutation and select passes through: a numbered sequence of
// observers, synchronous through ring 6 and detached for rings 7-9.
package observer

import (
	"context"
	"time"

	"github.com/ianzepp/monk-api/internal/record"
)

// Ring is one of the ten numbered pipeline phases, in execution order.
type Ring int

const (
	RingDataPrep Ring = iota
	RingValidate
	RingSecurity
	RingBusiness
	RingEnrich
	RingDatabase
	RingPostDatabase
	RingAudit
	RingIntegration
	RingNotification
)

var ringNames = [...]string{
	"DataPrep", "Validate", "Security", "Business", "Enrich",
	"Database", "PostDatabase", "Audit", "Integration", "Notification",
}

func (r Ring) String() string {
	if r < 0 || int(r) >= len(ringNames) {
		return "Unknown"
	}
	return ringNames[r]
}

// IsAsync reports whether the ring runs on the detached executor.
func (r Ring) IsAsync() bool { return r >= RingAudit }

// DefaultObserverTimeout is the pipeline's default timeout when
// Config.DefaultTimeout is unset; that default is applied to an observer
// that declares a zero Timeout().
const DefaultObserverTimeout = 5 * time.Second

// Observer is the uniform contract for every sync-phase (ring 0-6)
// participant.
type Observer interface {
	Name() string
	Ring() Ring
	AppliesToOperation(op record.Operation) bool
	AppliesToSchema(schemaName string) bool
	Timeout() time.Duration
	Priority() int
	Execute(ctx context.Context, octx *Context) error
}

// AsyncObserver is the contract for a ring 7-9 participant. It receives a
// read-only Snapshot rather than the live, mutable Context.
type AsyncObserver interface {
	Name() string
	Ring() Ring
	AppliesToOperation(op record.Operation) bool
	AppliesToSchema(schemaName string) bool
	Timeout() time.Duration
	Priority() int
	ExecuteAsync(ctx context.Context, snap Snapshot)
}

// StoreHandle is the tenant store contract the pipeline and ring 5's
// SqlExecutor consume (spec §6). It never parses tenant names or
// provisions databases — it is handed an already-scoped connection or
// transaction.
type StoreHandle interface {
	Execute(ctx context.Context, sql string, params []any) (rowsAffected int64, err error)
	Query(ctx context.Context, sql string, params []any) ([]map[string]any, error)
	Begin(ctx context.Context) (StoreHandle, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ColumnDefinition describes one column of a resolved schema.
type ColumnDefinition struct {
	Name          string
	ArrayType     bool
	SystemOwned   bool
	ValidationTag string
}

// SchemaDefinition is what SchemaProvider resolves a schema name to.
type SchemaDefinition struct {
	Name    string
	Columns []ColumnDefinition
}

// Column looks up a column definition by name.
func (s SchemaDefinition) Column(name string) (ColumnDefinition, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// SchemaProvider resolves a schema name to its definition (spec §6).
type SchemaProvider interface {
	Resolve(ctx context.Context, schemaName string) (SchemaDefinition, error)
}

// Identity is the acting principal's identity set, used for ACL overlap
// checks in ring 2.
type Identity struct {
	Subject string
	Groups  []string
}

// Set returns the full identity set (subject + groups) as used by the
// access-control predicate.
func (i Identity) Set() []string {
	out := make([]string, 0, len(i.Groups)+1)
	if i.Subject != "" {
		out = append(out, i.Subject)
	}
	out = append(out, i.Groups...)
	return out
}

// IdentityProvider yields the current principal's identity set (spec §6).
type IdentityProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

// AsyncExecutor spawns detached tasks for rings 7-9 (spec §6); it
// guarantees the task starts but never propagates its outcome to the
// caller. pkg/asyncexec.Pool satisfies this.
type AsyncExecutor interface {
	Dispatch(task func(ctx context.Context))
}
