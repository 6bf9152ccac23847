package builtin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianzepp/monk-api/internal/clock"
	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// fakeStore is an in-memory StoreHandle double: enough to exercise the
// builtins without a real database. queryFunc lets each test script the
// query responses it needs; Execute always reports zero rows affected.
type fakeStore struct {
	queryFunc func(sql string, params []any) ([]map[string]any, error)
}

func (s *fakeStore) Execute(ctx context.Context, sql string, params []any) (int64, error) {
	return 0, nil
}

func (s *fakeStore) Query(ctx context.Context, sql string, params []any) ([]map[string]any, error) {
	return s.queryFunc(sql, params)
}

func (s *fakeStore) Begin(ctx context.Context) (observer.StoreHandle, error) { return s, nil }
func (s *fakeStore) Commit(ctx context.Context) error                       { return nil }
func (s *fakeStore) Rollback(ctx context.Context) error                     { return nil }

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRecordPreloaderHydratesOriginalAndFlagsMissing(t *testing.T) {
	store := &fakeStore{
		queryFunc: func(sql string, params []any) ([]map[string]any, error) {
			return []map[string]any{
				{"id": "rec-1", "name": "Alice", "trashed_at": nil},
			}, nil
		},
	}

	recFound := record.Pending("rec-1", record.FieldMap{"name": "Alicia"}, record.RecordUpdate, testNow)
	recMissing := record.Pending("rec-2", record.FieldMap{"name": "Bob"}, record.RecordUpdate, testNow)

	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{recFound, recMissing}, nil, testNow, store, nil)

	preloader := NewRecordPreloader(filter.NewCompiler())
	require.NoError(t, preloader.Execute(context.Background(), octx))

	assert.Equal(t, "Alice", recFound.Original["name"])
	assert.Equal(t, "Alicia", recFound.Modified["name"])
	assert.Len(t, octx.Errors, 1)
}

func TestSoftDeleteGuardRejectsTrashedOriginal(t *testing.T) {
	trashedAt := testNow
	rec := record.Existing(record.FieldMap{"id": "rec-1", "trashed_at": trashedAt}, record.FieldMap{"name": "x"}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	guard := NewSoftDeleteGuard()
	require.NoError(t, guard.Execute(context.Background(), octx))
	assert.Len(t, octx.Errors, 1)
}

func TestSoftDeleteGuardAllowsUntrashedOriginal(t *testing.T) {
	rec := record.Existing(record.FieldMap{"id": "rec-1", "trashed_at": nil}, record.FieldMap{"name": "x"}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	guard := NewSoftDeleteGuard()
	require.NoError(t, guard.Execute(context.Background(), octx))
	assert.Empty(t, octx.Errors)
}

func TestTimestampEnricherSetsBothOnCreate(t *testing.T) {
	rec := record.Create(record.FieldMap{"name": "x"}, testNow)
	octx := observer.NewContext(record.OpCreate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	enricher := NewTimestampEnricher(clock.Fixed{At: testNow})
	require.NoError(t, enricher.Execute(context.Background(), octx))

	assert.Equal(t, testNow, rec.Modified["created_at"])
	assert.Equal(t, testNow, rec.Modified["updated_at"])
}

func TestTimestampEnricherSkipsUpdatedAtOnNoOpUpdate(t *testing.T) {
	rec := record.Existing(record.FieldMap{"id": "rec-1", "name": "x"}, record.FieldMap{}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	enricher := NewTimestampEnricher(clock.Fixed{At: testNow})
	require.NoError(t, enricher.Execute(context.Background(), octx))

	_, ok := rec.Modified["updated_at"]
	assert.False(t, ok)
}

func TestTimestampEnricherSetsUpdatedAtWhenChanged(t *testing.T) {
	rec := record.Existing(record.FieldMap{"id": "rec-1", "name": "x"}, record.FieldMap{"name": "y"}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	enricher := NewTimestampEnricher(clock.Fixed{At: testNow})
	require.NoError(t, enricher.Execute(context.Background(), octx))

	assert.Equal(t, testNow, rec.Modified["updated_at"])
}

func TestQuerySafetyCapsLimitAndDefaultsOrder(t *testing.T) {
	over := 500
	fd := &filter.FilterData{Limit: &over}
	octx := observer.NewContext(record.OpSelect, "account", observer.SchemaDefinition{}, nil, fd, testNow, nil, nil)

	safety := NewQuerySafety(100)
	require.NoError(t, safety.Execute(context.Background(), octx))

	assert.Equal(t, 100, *octx.Filter.Limit)
	assert.Equal(t, []filter.OrderClause{{Column: "id", Direction: filter.Asc}}, octx.Filter.Order)
}

type fakeIdentityProvider struct {
	identity observer.Identity
}

func (p fakeIdentityProvider) Identity(ctx context.Context) (observer.Identity, error) {
	return p.identity, nil
}

func TestQueryAccessControlConjoinsExistingPredicate(t *testing.T) {
	existing := filter.Eq("status", "active")
	fd := &filter.FilterData{Where: &existing}
	octx := observer.NewContext(record.OpSelect, "account", observer.SchemaDefinition{}, nil, fd, testNow, nil, fakeIdentityProvider{observer.Identity{Subject: "user-1", Groups: []string{"team-a"}}})

	access := NewQueryAccessControl()
	require.NoError(t, access.Execute(context.Background(), octx))

	require.NotNil(t, octx.Filter.Where)
	assert.Equal(t, filter.LogicalAnd, octx.Filter.Where.Logical)
	assert.Len(t, octx.Filter.Where.Children, 2)

	note, ok := observer.GetMetadata[AccessFilterNote](octx)
	require.True(t, ok)
	assert.Equal(t, "user-1", note.Subject)
}

func TestSchemaValidatorValidatesOnlyDiffedFieldsOnUpdate(t *testing.T) {
	schema := observer.SchemaDefinition{Columns: []observer.ColumnDefinition{
		{Name: "email", ValidationTag: "required,email"},
		{Name: "name", ValidationTag: "required"},
	}}
	rec := record.Existing(record.FieldMap{"id": "rec-1", "email": "a@b.com", "name": "x"}, record.FieldMap{"email": "not-an-email"}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", schema, []*record.StatefulRecord{rec}, nil, testNow, nil, nil)

	validator := NewSchemaValidator()
	require.NoError(t, validator.Execute(context.Background(), octx))

	assert.Len(t, octx.Errors, 1)
	assert.Equal(t, record.ValidationInvalid, rec.Metadata.FieldValidations["email"].Status)
	_, nameChecked := rec.Metadata.FieldValidations["name"]
	assert.False(t, nameChecked)
}

func TestSqlExecutorInsertHydratesFromReturning(t *testing.T) {
	var capturedSQL string
	var capturedParams []any
	store := &fakeStore{
		queryFunc: func(sql string, params []any) ([]map[string]any, error) {
			capturedSQL = sql
			capturedParams = params
			return []map[string]any{{"id": "rec-1", "name": "Alice"}}, nil
		},
	}

	rec := record.Create(record.FieldMap{"name": "Alice"}, testNow)
	octx := observer.NewContext(record.OpCreate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, store, nil)

	exec := NewSqlExecutor(filter.NewCompiler(), clock.Fixed{At: testNow})
	require.NoError(t, exec.Execute(context.Background(), octx))

	assert.Contains(t, capturedSQL, "INSERT INTO")
	assert.Contains(t, capturedSQL, "RETURNING *")
	assert.Equal(t, []any{"Alice"}, capturedParams)
	assert.Equal(t, "rec-1", *rec.ID)
	assert.Equal(t, "Alice", rec.Original["name"])
}

func TestSqlExecutorUpdateSkipsNoOp(t *testing.T) {
	queried := false
	store := &fakeStore{
		queryFunc: func(sql string, params []any) ([]map[string]any, error) {
			queried = true
			return nil, nil
		},
	}
	rec := record.Existing(record.FieldMap{"id": "rec-1", "name": "x"}, record.FieldMap{}, record.RecordUpdate, testNow)
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, store, nil)

	exec := NewSqlExecutor(filter.NewCompiler(), clock.Fixed{At: testNow})
	require.NoError(t, exec.Execute(context.Background(), octx))
	assert.False(t, queried)
}

func TestSqlExecutorSelectWrapsRowsAsNoChange(t *testing.T) {
	store := &fakeStore{
		queryFunc: func(sql string, params []any) ([]map[string]any, error) {
			return []map[string]any{{"id": "rec-1", "name": "Alice"}}, nil
		},
	}
	octx := observer.NewContext(record.OpSelect, "account", observer.SchemaDefinition{}, nil, &filter.FilterData{}, testNow, store, nil)

	exec := NewSqlExecutor(filter.NewCompiler(), clock.Fixed{At: testNow})
	require.NoError(t, exec.Execute(context.Background(), octx))

	require.Len(t, octx.Records, 1)
	assert.Equal(t, record.RecordNoChange, octx.Records[0].Operation)
	assert.Equal(t, octx.Records[0].Original, octx.Records[0].Modified)
}

func TestSqlExecutorMissingIdAborts(t *testing.T) {
	rec := record.Pending("", record.FieldMap{"name": "x"}, record.RecordUpdate, testNow)
	rec.Original = record.FieldMap{}
	octx := observer.NewContext(record.OpUpdate, "account", observer.SchemaDefinition{}, []*record.StatefulRecord{rec}, nil, testNow, &fakeStore{queryFunc: func(string, []any) ([]map[string]any, error) {
		return nil, fmt.Errorf("should not be called")
	}}, nil)

	exec := NewSqlExecutor(filter.NewCompiler(), clock.Fixed{At: testNow})
	require.Error(t, exec.Execute(context.Background(), octx))
}
