package builtin

import (
	"context"
	"time"

	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// QuerySafety runs at ring 4 (Enrich) for Select. It caps an unbounded or
// excessive limit to MaxLimit and, when the caller supplied no ordering,
// applies a deterministic default so paginated results are stable across
// requests.
type QuerySafety struct {
	MaxLimit     int
	DefaultOrder []filter.OrderClause
}

// NewQuerySafety builds a QuerySafety observer. maxLimit <= 0 disables the
// cap.
func NewQuerySafety(maxLimit int) *QuerySafety {
	return &QuerySafety{
		MaxLimit:     maxLimit,
		DefaultOrder: []filter.OrderClause{{Column: "id", Direction: filter.Asc}},
	}
}

func (o *QuerySafety) Name() string { return "query_safety" }
func (o *QuerySafety) Ring() observer.Ring { return observer.RingEnrich }
func (o *QuerySafety) Priority() int { return 0 }
func (o *QuerySafety) Timeout() time.Duration { return 0 }

func (o *QuerySafety) AppliesToOperation(op record.Operation) bool { return op == record.OpSelect }
func (o *QuerySafety) AppliesToSchema(schemaName string) bool { return true }

func (o *QuerySafety) Execute(ctx context.Context, octx *observer.Context) error {
	if octx.Filter == nil {
		octx.Filter = &filter.FilterData{}
	}

	if o.MaxLimit > 0 {
		if octx.Filter.Limit == nil || *octx.Filter.Limit > o.MaxLimit {
			limit := o.MaxLimit
			octx.Filter.Limit = &limit
		}
	}

	if len(octx.Filter.Order) == 0 {
		octx.Filter.Order = o.DefaultOrder
	}
	return nil
}
