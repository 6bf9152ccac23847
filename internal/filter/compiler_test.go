package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

func intPtr(i int) *int { return &i }

func TestCompileSelectDefaultGuards(t *testing.T) {
	c := NewCompiler()
	result, err := c.CompileSelect("students", FilterData{}, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "students" WHERE "trashed_at" IS NULL AND "deleted_at" IS NULL`, result.SQL)
	assert.Empty(t, result.Params)
}

func TestCompileSelectBothGuardsSuppressedNoPredicate(t *testing.T) {
	c := NewCompiler()
	fd := FilterData{IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileSelect("students", fd, 0)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WHERE 1=1")
}

func TestCompileSelectUserPredicateConjoinedWithGuards(t *testing.T) {
	c := NewCompiler()
	where := Eq("name", "Alice")
	fd := FilterData{Where: &where}
	result, err := c.CompileSelect("students", fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "students" WHERE ("name" = $1) AND "trashed_at" IS NULL AND "deleted_at" IS NULL`, result.SQL)
	assert.Equal(t, []any{"Alice"}, result.Params)
}

func TestCompileEmptyInProducesConstantFalse(t *testing.T) {
	c := NewCompiler()
	where := Field("tags", OpIn, []any{})
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, "1=0", result.SQL)
}

func TestCompileEmptyNinProducesConstantTrue(t *testing.T) {
	c := NewCompiler()
	where := Field("tags", OpNIn, []any{})
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, "1=1", result.SQL)
}

func TestCompileEqNullBecomesIsNull(t *testing.T) {
	c := NewCompiler()
	where := Eq("deleted_by", nil)
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `"deleted_by" IS NULL`, result.SQL)
}

func TestCompileBetweenRequiresExactlyTwoOperands(t *testing.T) {
	c := NewCompiler()
	where := Field("age", OpBetween, []any{1})
	fd := FilterData{Where: &where}
	_, err := c.CompileWhere(fd, 0)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "InvalidOperatorData", appErr.Code)
}

func TestCompileBetweenPreservesOperandOrder(t *testing.T) {
	c := NewCompiler()
	where := Field("age", OpBetween, []any{18, 65})
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `"age" BETWEEN $1 AND $2`, result.SQL)
	assert.Equal(t, []any{18, 65}, result.Params)
}

func TestCompileUnknownOperatorFails(t *testing.T) {
	c := NewCompiler()
	where := Field("name", Operator("$bogus"), "x")
	fd := FilterData{Where: &where}
	_, err := c.CompileWhere(fd, 0)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UnsupportedOperator", appErr.Code)
}

func TestCompileInvalidColumnRejected(t *testing.T) {
	c := NewCompiler()
	where := Eq("name; DROP TABLE students;--", "Alice")
	fd := FilterData{Where: &where}
	_, err := c.CompileWhere(fd, 0)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "InvalidColumn", appErr.Code)
}

func TestCompileRegexFlagsRejected(t *testing.T) {
	c := NewCompiler()
	where := Field("name", OpRegex, map[string]any{"pattern": "^A", "flags": "i"})
	fd := FilterData{Where: &where}
	_, err := c.CompileWhere(fd, 0)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "InvalidOperatorData", appErr.Code)
}

func TestCompileLogicalGroupsPreserveOrder(t *testing.T) {
	c := NewCompiler()
	a := Eq("name", "Alice")
	b := Eq("age", 30)
	where := And(a, b)
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `("name" = $1) AND ("age" = $2)`, result.SQL)
	assert.Equal(t, []any{"Alice", 30}, result.Params)
}

func TestCompileNandIsNotOfAnd(t *testing.T) {
	c := NewCompiler()
	where := Nand(Eq("a", 1), Eq("b", 2))
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `NOT (("a" = $1) AND ("b" = $2))`, result.SQL)
}

func TestCompileNotWrapsSingleChild(t *testing.T) {
	c := NewCompiler()
	where := Not(Eq("a", 1))
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `NOT ("a" = $1)`, result.SQL)
}

func TestCompileNegativeLimitRejected(t *testing.T) {
	c := NewCompiler()
	fd := FilterData{Limit: intPtr(-1)}
	_, err := c.CompileSelect("students", fd, 0)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "InvalidLimit", appErr.Code)
}

func TestCompileStartingParamIndexSplices(t *testing.T) {
	c := NewCompiler()
	where := Eq("name", "Alice")
	fd := FilterData{Where: &where, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 2)
	require.NoError(t, err)
	assert.Equal(t, `"name" = $3`, result.SQL)
}

func TestCompileModifyOrdersColumnsDeterministically(t *testing.T) {
	c := NewCompiler()
	result, err := c.CompileModify("students", FilterData{IncludeTrashed: true, IncludeDeleted: true}, map[string]any{
		"name": "Alice",
		"age":  30,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "students" SET "age" = $1, "name" = $2 WHERE 1=1`, result.SQL)
	assert.Equal(t, []any{30, "Alice"}, result.Params)
}

func TestCompileArrayOperators(t *testing.T) {
	c := NewCompiler()

	anyNode := Field("roles", OpAny, []any{"admin", "editor"})
	fd := FilterData{Where: &anyNode, IncludeTrashed: true, IncludeDeleted: true}
	result, err := c.CompileWhere(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, `"roles" && ARRAY[$1, $2]`, result.SQL)

	allNode := Field("roles", OpAll, []any{"admin"})
	fd2 := FilterData{Where: &allNode, IncludeTrashed: true, IncludeDeleted: true}
	result2, err := c.CompileWhere(fd2, 0)
	require.NoError(t, err)
	assert.Equal(t, `"roles" @> ARRAY[$1]`, result2.SQL)

	sizeNode := Field("roles", OpSize, 2)
	fd3 := FilterData{Where: &sizeNode, IncludeTrashed: true, IncludeDeleted: true}
	result3, err := c.CompileWhere(fd3, 0)
	require.NoError(t, err)
	assert.Equal(t, `array_length("roles", 1) = $1`, result3.SQL)
}
