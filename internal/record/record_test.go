package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCreateChangesAllAdded(t *testing.T) {
	rec := Create(FieldMap{"name": "Alice", "age": 30}, testNow)

	changes := rec.CalculateChanges()
	assert.True(t, changes.HasChanges)
	assert.Len(t, changes.Added, 2)
	assert.Empty(t, changes.ModifiedFields)
	assert.Empty(t, changes.Removed)

	plan, err := rec.ToWritePlan("users")
	require.NoError(t, err)
	assert.Equal(t, SqlInsert, plan.Kind)
	// Deterministic, sorted field order.
	assert.Equal(t, []string{"age", "name"}, plan.Fields)
	assert.Len(t, plan.Values, 2)
}

func TestUpdateChangesDetectedAndFiltered(t *testing.T) {
	original := FieldMap{
		"id":         "11111111-1111-1111-1111-111111111111",
		"name":       "Alice",
		"created_at": "2024-01-01T00:00:00Z",
	}
	changes := FieldMap{
		"name":       "Alice B",
		"created_at": "2025-01-01T00:00:00Z", // system field, must be dropped
	}
	rec := Existing(original, changes, RecordUpdate, testNow)

	plan, err := rec.ToWritePlan("users")
	require.NoError(t, err)
	require.Equal(t, SqlUpdate, plan.Kind)
	assert.Contains(t, plan.Updates, "name")
	assert.NotContains(t, plan.Updates, "created_at")
}

func TestNullVsRemoveSemantics(t *testing.T) {
	original := FieldMap{
		"id":       "22222222-2222-2222-2222-222222222222",
		"nickname": "Al",
	}
	rec := Existing(original, nil, RecordUpdate, testNow)

	rec.SetField("nickname", nil, "")
	plan, err := rec.ToWritePlan("users")
	require.NoError(t, err)
	require.Equal(t, SqlUpdate, plan.Kind)
	require.Contains(t, plan.Updates, "nickname")
	assert.Nil(t, plan.Updates["nickname"])

	rec.RemoveField("nickname", "tester")
	plan2, err := rec.ToWritePlan("users")
	require.NoError(t, err)
	require.Equal(t, SqlUpdate, plan2.Kind)
	assert.NotContains(t, plan2.Updates, "nickname")
}

func TestUpdateWithEmptyDiffIsNoOp(t *testing.T) {
	original := FieldMap{"id": "33333333-3333-3333-3333-333333333333", "name": "Alice"}
	rec := Existing(original, nil, RecordUpdate, testNow)

	plan, err := rec.ToWritePlan("users")
	require.NoError(t, err)
	assert.Equal(t, SqlNoOp, plan.Kind)
}

func TestMutatingOperationsRequireID(t *testing.T) {
	rec := Existing(FieldMap{"name": "Alice"}, FieldMap{"name": "Bob"}, RecordUpdate, testNow)

	_, err := rec.ToWritePlan("users")
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindSystem, appErr.Kind)
}

func TestDeleteAndRevertPlans(t *testing.T) {
	original := FieldMap{"id": "44444444-4444-4444-4444-444444444444"}

	del := Existing(original, nil, RecordDelete, testNow)
	plan, err := del.ToWritePlan("users")
	require.NoError(t, err)
	assert.Equal(t, SqlSoftDelete, plan.Kind)
	assert.Equal(t, "44444444-4444-4444-4444-444444444444", plan.ID)

	revert := Existing(original, nil, RecordRevert, testNow)
	plan2, err := revert.ToWritePlan("users")
	require.NoError(t, err)
	assert.Equal(t, SqlRevert, plan2.Kind)
}

func TestFieldChangedAndProvenance(t *testing.T) {
	original := FieldMap{"id": "55555555-5555-5555-5555-555555555555", "name": "Alice"}
	rec := Existing(original, nil, RecordUpdate, testNow)

	assert.False(t, rec.FieldChanged("name"))
	rec.SetField("name", "Alicia", "enricher")
	assert.True(t, rec.FieldChanged("name"))

	observer, ok := rec.FieldChangedByObserver("name")
	assert.True(t, ok)
	assert.Equal(t, "enricher", observer)
	assert.False(t, rec.FieldChangedByAPI("name"))

	rec.SetField("name", "Alicia Jones", "")
	assert.True(t, rec.FieldChangedByAPI("name"))
}

func TestCalculateChangesIsPure(t *testing.T) {
	original := FieldMap{"id": "66666666-6666-6666-6666-666666666666", "name": "Alice"}
	rec := Existing(original, FieldMap{"age": 31}, RecordUpdate, testNow)

	first := rec.CalculateChanges()
	second := rec.CalculateChanges()
	assert.Equal(t, first, second)
}
