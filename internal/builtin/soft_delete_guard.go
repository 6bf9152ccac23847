package builtin

import (
	"context"
	"time"

	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// SoftDeleteGuard runs at ring 2 (Security) for Update/Delete. A record
// whose preloaded original already carries a trashed_at is off limits to
// further mutation until it is reverted — this observer is what turns
// that invariant into an enforced SecurityError rather than a silent
// no-op update.
type SoftDeleteGuard struct{}

// NewSoftDeleteGuard builds a SoftDeleteGuard observer.
func NewSoftDeleteGuard() *SoftDeleteGuard { return &SoftDeleteGuard{} }

func (o *SoftDeleteGuard) Name() string { return "soft_delete_guard" }
func (o *SoftDeleteGuard) Ring() observer.Ring { return observer.RingSecurity }
func (o *SoftDeleteGuard) Priority() int { return 10 }
func (o *SoftDeleteGuard) Timeout() time.Duration { return 0 }

func (o *SoftDeleteGuard) AppliesToOperation(op record.Operation) bool {
	return op == record.OpUpdate || op == record.OpDelete
}

func (o *SoftDeleteGuard) AppliesToSchema(schemaName string) bool { return true }

func (o *SoftDeleteGuard) Execute(ctx context.Context, octx *observer.Context) error {
	for _, rec := range octx.Records {
		if rec.Original == nil {
			continue
		}
		if rec.Original["trashed_at"] != nil {
			octx.AddError(apperrors.ErrSoftDeleteGuard)
		}
	}
	return nil
}
