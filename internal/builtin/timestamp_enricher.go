package builtin

import (
	"context"
	"time"

	"github.com/ianzepp/monk-api/internal/clock"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// TimestampEnricher runs at ring 4 (Enrich) for Create/Update. Create
// stamps both created_at and updated_at; Update stamps updated_at only
// when the record actually has a diff, so a no-op update doesn't bump a
// row's modification time.
type TimestampEnricher struct {
	Clock clock.Clock
}

// NewTimestampEnricher builds a TimestampEnricher over clk.
func NewTimestampEnricher(clk clock.Clock) *TimestampEnricher {
	return &TimestampEnricher{Clock: clk}
}

func (o *TimestampEnricher) Name() string { return "timestamp_enricher" }
func (o *TimestampEnricher) Ring() observer.Ring { return observer.RingEnrich }
func (o *TimestampEnricher) Priority() int { return 10 }
func (o *TimestampEnricher) Timeout() time.Duration { return 0 }

func (o *TimestampEnricher) AppliesToOperation(op record.Operation) bool {
	return op == record.OpCreate || op == record.OpUpdate
}

func (o *TimestampEnricher) AppliesToSchema(schemaName string) bool { return true }

func (o *TimestampEnricher) Execute(ctx context.Context, octx *observer.Context) error {
	now := o.Clock.Now()
	for _, rec := range octx.Records {
		switch rec.Operation {
		case record.RecordCreate:
			rec.SetField("created_at", now, o.Name())
			rec.SetField("updated_at", now, o.Name())
		case record.RecordUpdate:
			if rec.CalculateChanges().HasChanges {
				rec.SetField("updated_at", now, o.Name())
			}
		}
	}
	return nil
}
