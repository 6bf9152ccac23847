// Package builtin implements the seven built-in observers (SPEC_FULL §4.4)
// every registry wires at process start: the minimum set needed to turn
// the pipeline into a working datastore — preloading, validation, access
// control, enrichment, and the ring-5 SQL executor itself.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// RecordPreloader runs at ring 0 (DataPrep) for Update/Delete/Revert. It
// issues one batched read keyed by the invocation's ids — including
// soft-deleted rows, since Revert must be able to find a trashed record —
// and hydrates each record's Original snapshot. An id with no matching row
// is a ValidationError, one per missing id, so later rings never observe a
// record with a nil Original.
type RecordPreloader struct {
	Compiler *filter.Compiler
}

// NewRecordPreloader builds a RecordPreloader over a filter compiler.
func NewRecordPreloader(compiler *filter.Compiler) *RecordPreloader {
	return &RecordPreloader{Compiler: compiler}
}

func (o *RecordPreloader) Name() string { return "record_preloader" }
func (o *RecordPreloader) Ring() observer.Ring { return observer.RingDataPrep }
func (o *RecordPreloader) Priority() int { return 0 }
func (o *RecordPreloader) Timeout() time.Duration { return 0 }

func (o *RecordPreloader) AppliesToOperation(op record.Operation) bool {
	return op == record.OpUpdate || op == record.OpDelete || op == record.OpRevert
}

func (o *RecordPreloader) AppliesToSchema(schemaName string) bool { return true }

func (o *RecordPreloader) Execute(ctx context.Context, octx *observer.Context) error {
	pending := make([]string, 0, len(octx.Records))
	byID := make(map[string]*record.StatefulRecord, len(octx.Records))
	for _, rec := range octx.Records {
		if rec.Original != nil {
			continue
		}
		if rec.ID == nil || *rec.ID == "" {
			octx.AddError(apperrors.New(apperrors.KindValidation, "MISSING_ID", "record has no id to preload"))
			continue
		}
		pending = append(pending, *rec.ID)
		byID[*rec.ID] = rec
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]any, len(pending))
	for i, id := range pending {
		ids[i] = id
	}
	where := filter.Field("id", filter.OpIn, ids)
	fd := filter.FilterData{
		Where:          &where,
		IncludeTrashed: true,
		IncludeDeleted: true,
	}

	result, err := o.Compiler.CompileSelect(octx.SchemaName, fd, 0)
	if err != nil {
		return err
	}
	rows, err := octx.Store.Query(ctx, result.SQL, result.Params)
	if err != nil {
		return err
	}

	found := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		idVal, _ := row["id"].(string)
		if idVal == "" {
			continue
		}
		if rec, ok := byID[idVal]; ok {
			rec.HydrateOriginal(row)
			found[idVal] = struct{}{}
		}
	}

	for _, id := range pending {
		if _, ok := found[id]; !ok {
			octx.AddError(apperrors.New(apperrors.KindValidation, "RECORD_NOT_FOUND", fmt.Sprintf("no record with id %s", id)))
		}
	}
	return nil
}
