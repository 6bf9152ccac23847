package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// SchemaValidator runs at ring 1 (Validate) for Create/Update. Create
// validates every field in Modified except the system-owned columns;
// Update validates only the diffed columns (added ∪ modified_fields) —
// untouched fields were already valid when they were written. Each
// field's verdict is recorded on the record's metadata so ring 7 audit
// observers don't need to re-run validation to know what passed.
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator builds a SchemaValidator over a fresh validator
// instance.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{validate: validator.New()}
}

func (o *SchemaValidator) Name() string { return "schema_validator" }
func (o *SchemaValidator) Ring() observer.Ring { return observer.RingValidate }
func (o *SchemaValidator) Priority() int { return 0 }
func (o *SchemaValidator) Timeout() time.Duration { return 0 }

func (o *SchemaValidator) AppliesToOperation(op record.Operation) bool {
	return op == record.OpCreate || op == record.OpUpdate
}

func (o *SchemaValidator) AppliesToSchema(schemaName string) bool { return true }

func (o *SchemaValidator) Execute(ctx context.Context, octx *observer.Context) error {
	for _, rec := range octx.Records {
		fields := o.fieldsToValidate(rec)
		for _, field := range fields {
			col, ok := octx.Schema.Column(field)
			if !ok || col.SystemOwned || col.ValidationTag == "" {
				continue
			}
			value, _ := rec.GetField(field)
			if err := o.validate.Var(value, col.ValidationTag); err != nil {
				rec.Metadata.FieldValidations[field] = record.FieldValidation{
					Status:  record.ValidationInvalid,
					Message: err.Error(),
				}
				octx.AddError(validationError(field, fmt.Sprintf("field %q failed validation: %s", field, col.ValidationTag)))
				continue
			}
			rec.Metadata.FieldValidations[field] = record.FieldValidation{Status: record.ValidationValid}
		}
	}
	return nil
}

func (o *SchemaValidator) fieldsToValidate(rec *record.StatefulRecord) []string {
	if rec.Operation == record.RecordCreate {
		fields := make([]string, 0, len(rec.Modified))
		for field := range rec.Modified {
			fields = append(fields, field)
		}
		return fields
	}

	changes := rec.CalculateChanges()
	fields := make([]string, 0, len(changes.Added)+len(changes.ModifiedFields))
	for field := range changes.Added {
		fields = append(fields, field)
	}
	for field := range changes.ModifiedFields {
		fields = append(fields, field)
	}
	return fields
}
