package builtin

import (
	"context"
	"time"

	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// AccessFilterNote is recorded in the typed metadata bag when
// QueryAccessControl narrows a query, so ring 7 audit observers can log
// that a query was access-scoped without re-deriving the identity set.
type AccessFilterNote struct {
	Subject string
	Groups  []string
}

// QueryAccessControl runs at ring 2 (Security) for Select. It derives the
// acting principal's identity set and conjoins an ACL predicate — overlap
// against access_read, access_edit, or access_full — with whatever
// predicate the caller supplied, so a select never returns rows the
// principal cannot see.
type QueryAccessControl struct{}

// NewQueryAccessControl builds a QueryAccessControl observer.
func NewQueryAccessControl() *QueryAccessControl { return &QueryAccessControl{} }

func (o *QueryAccessControl) Name() string { return "query_access_control" }
func (o *QueryAccessControl) Ring() observer.Ring { return observer.RingSecurity }
func (o *QueryAccessControl) Priority() int { return 0 }
func (o *QueryAccessControl) Timeout() time.Duration { return 0 }

func (o *QueryAccessControl) AppliesToOperation(op record.Operation) bool {
	return op == record.OpSelect
}

func (o *QueryAccessControl) AppliesToSchema(schemaName string) bool { return true }

func (o *QueryAccessControl) Execute(ctx context.Context, octx *observer.Context) error {
	identity, err := octx.Identity.Identity(ctx)
	if err != nil {
		return err
	}

	ids := make([]any, 0, len(identity.Set()))
	for _, s := range identity.Set() {
		ids = append(ids, s)
	}

	acl := filter.Or(
		filter.Field("access_read", filter.OpAny, ids),
		filter.Field("access_edit", filter.OpAny, ids),
		filter.Field("access_full", filter.OpAny, ids),
	)

	if octx.Filter == nil {
		octx.Filter = &filter.FilterData{}
	}
	if octx.Filter.Where == nil {
		octx.Filter.Where = &acl
	} else {
		combined := filter.And(*octx.Filter.Where, acl)
		octx.Filter.Where = &combined
	}

	observer.SetMetadata(octx, AccessFilterNote{Subject: identity.Subject, Groups: identity.Groups})
	return nil
}
