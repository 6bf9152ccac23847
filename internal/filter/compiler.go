package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifier(name string, invalid func(string) *apperrors.Error) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", invalid(name)
	}
	return `"` + name + `"`, nil
}

// Compiler compiles FilterData documents into parameterized SQL. It holds
// no state of its own; every Compile call is independent and safe to call
// concurrently.
type Compiler struct{}

// NewCompiler returns a stateless filter compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

type builder struct {
	paramIndex int
	params     []any
}

func newBuilder(startingParamIndex int) *builder {
	return &builder{paramIndex: startingParamIndex}
}

func (b *builder) param(v any) string {
	b.params = append(b.params, v)
	b.paramIndex++
	return fmt.Sprintf("$%d", b.paramIndex)
}

// CompileSelect produces a full SELECT statement for table.
func (c *Compiler) CompileSelect(table string, fd FilterData, startingParamIndex int) (SqlResult, error) {
	quotedTable, err := validateIdentifier(table, errInvalidTable)
	if err != nil {
		return SqlResult{}, err
	}

	projection, err := compileProjection(fd.Select)
	if err != nil {
		return SqlResult{}, err
	}

	b := newBuilder(startingParamIndex)
	where, err := compileWhereClause(fd, b)
	if err != nil {
		return SqlResult{}, err
	}

	orderBy, err := compileOrderBy(fd.Order)
	if err != nil {
		return SqlResult{}, err
	}

	limitOffset, err := compileLimitOffset(fd.Limit, fd.Offset)
	if err != nil {
		return SqlResult{}, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s%s", projection, quotedTable, where, orderBy, limitOffset)
	return SqlResult{SQL: sql, Params: b.params}, nil
}

// CompileWhere produces just the WHERE subclause, for splicing into an
// outer query (e.g. an access-control observer narrowing a query another
// component already started building).
func (c *Compiler) CompileWhere(fd FilterData, startingParamIndex int) (SqlResult, error) {
	b := newBuilder(startingParamIndex)
	where, err := compileWhereClause(fd, b)
	if err != nil {
		return SqlResult{}, err
	}
	return SqlResult{SQL: where, Params: b.params}, nil
}

// CompileCount produces a SELECT COUNT(*) statement.
func (c *Compiler) CompileCount(table string, fd FilterData, startingParamIndex int) (SqlResult, error) {
	quotedTable, err := validateIdentifier(table, errInvalidTable)
	if err != nil {
		return SqlResult{}, err
	}
	b := newBuilder(startingParamIndex)
	where, err := compileWhereClause(fd, b)
	if err != nil {
		return SqlResult{}, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quotedTable, where)
	return SqlResult{SQL: sql, Params: b.params}, nil
}

// CompileModify produces an UPDATE statement combining a validated WHERE
// with caller-supplied column assignments (the ModifyPlan of spec §4.1).
func (c *Compiler) CompileModify(table string, fd FilterData, assignments map[string]any, startingParamIndex int) (SqlResult, error) {
	quotedTable, err := validateIdentifier(table, errInvalidTable)
	if err != nil {
		return SqlResult{}, err
	}
	if len(assignments) == 0 {
		return SqlResult{}, errInvalidOperatorData("update requires at least one assignment")
	}

	columns := make([]string, 0, len(assignments))
	for col := range assignments {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	b := newBuilder(startingParamIndex)
	setParts := make([]string, 0, len(columns))
	for _, col := range columns {
		quotedCol, err := validateIdentifier(col, errInvalidColumn)
		if err != nil {
			return SqlResult{}, err
		}
		setParts = append(setParts, fmt.Sprintf("%s = %s", quotedCol, b.param(assignments[col])))
	}

	where, err := compileWhereClause(fd, b)
	if err != nil {
		return SqlResult{}, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quotedTable, strings.Join(setParts, ", "), where)
	return SqlResult{SQL: sql, Params: b.params}, nil
}

// ValidateIdentifier validates and double-quotes a bare column/table name,
// for components that assemble SQL fragments outside of FilterData (e.g.
// the ring-5 SqlExecutor's Insert/Update statements).
func ValidateIdentifier(name string) (string, error) {
	return validateIdentifier(name, errInvalidColumn)
}

func compileProjection(columns []string) (string, error) {
	if len(columns) == 0 {
		return "*", nil
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		q, err := validateIdentifier(col, errInvalidColumn)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, ", "), nil
}

func compileOrderBy(order []OrderClause) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	parts := make([]string, len(order))
	for i, o := range order {
		quotedCol, err := validateIdentifier(o.Column, errInvalidColumn)
		if err != nil {
			return "", err
		}
		switch o.Direction {
		case Asc, Desc:
		default:
			return "", errInvalidOperatorData("order direction must be ASC or DESC")
		}
		parts[i] = fmt.Sprintf("%s %s", quotedCol, o.Direction)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func compileLimitOffset(limit, offset *int) (string, error) {
	var sb strings.Builder
	if limit != nil {
		if *limit < 0 {
			return "", errInvalidLimit()
		}
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *limit))
	}
	if offset != nil {
		if *offset < 0 {
			return "", errInvalidOffset()
		}
		sb.WriteString(fmt.Sprintf(" OFFSET %d", *offset))
	}
	return sb.String(), nil
}

// compileWhereClause always produces a WHERE body: the user predicate
// (if any) conjoined with the soft-delete guards, or the guards alone, or
// the literal true when both the predicate and the guards are absent
// (spec §3/§4.1).
func compileWhereClause(fd FilterData, b *builder) (string, error) {
	var guards []string
	if !fd.IncludeTrashed {
		guards = append(guards, `"trashed_at" IS NULL`)
	}
	if !fd.IncludeDeleted {
		guards = append(guards, `"deleted_at" IS NULL`)
	}

	if fd.Where == nil {
		if len(guards) == 0 {
			return "1=1", nil
		}
		return strings.Join(guards, " AND "), nil
	}

	userSQL, err := compileNode(*fd.Where, b)
	if err != nil {
		return "", err
	}
	if len(guards) == 0 {
		return userSQL, nil
	}
	return fmt.Sprintf("(%s) AND %s", userSQL, strings.Join(guards, " AND ")), nil
}

func compileNode(n Node, b *builder) (string, error) {
	switch n.Kind {
	case NodeField:
		return compileFieldCondition(n, b)
	case NodeGroup:
		return compileGroup(n, b)
	default:
		return "", errInvalidWhereClause("unrecognized filter node")
	}
}

func compileGroup(n Node, b *builder) (string, error) {
	switch n.Logical {
	case LogicalAnd, LogicalOr:
		if len(n.Children) == 0 {
			return "", errInvalidOperatorData(string(n.Logical) + " requires at least one child")
		}
		sql, err := joinChildren(n.Children, n.Logical == LogicalAnd, b)
		if err != nil {
			return "", err
		}
		return sql, nil

	case LogicalNand:
		if len(n.Children) == 0 {
			return "", errInvalidOperatorData("$nand requires at least one child")
		}
		sql, err := joinChildren(n.Children, true, b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", sql), nil

	case LogicalNor:
		if len(n.Children) == 0 {
			return "", errInvalidOperatorData("$nor requires at least one child")
		}
		sql, err := joinChildren(n.Children, false, b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", sql), nil

	case LogicalNot:
		if len(n.Children) != 1 {
			return "", errInvalidOperatorData("$not requires exactly one child")
		}
		sql, err := compileNode(n.Children[0], b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", sql), nil

	default:
		return "", errUnsupportedOperator(string(n.Logical))
	}
}

func joinChildren(children []Node, and bool, b *builder) (string, error) {
	parts := make([]string, len(children))
	for i, child := range children {
		sql, err := compileNode(child, b)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + sql + ")"
	}
	joiner := " OR "
	if and {
		joiner = " AND "
	}
	return strings.Join(parts, joiner), nil
}

func compileFieldCondition(n Node, b *builder) (string, error) {
	quotedCol, err := validateIdentifier(n.Field, errInvalidColumn)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case OpEq:
		if n.Operand == nil {
			return quotedCol + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", quotedCol, b.param(n.Operand)), nil

	case OpNe, OpNeq:
		if n.Operand == nil {
			return quotedCol + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s <> %s", quotedCol, b.param(n.Operand)), nil

	case OpGt:
		return fmt.Sprintf("%s > %s", quotedCol, b.param(n.Operand)), nil
	case OpGte:
		return fmt.Sprintf("%s >= %s", quotedCol, b.param(n.Operand)), nil
	case OpLt:
		return fmt.Sprintf("%s < %s", quotedCol, b.param(n.Operand)), nil
	case OpLte:
		return fmt.Sprintf("%s <= %s", quotedCol, b.param(n.Operand)), nil

	case OpLike:
		return fmt.Sprintf("%s LIKE %s", quotedCol, b.param(n.Operand)), nil
	case OpNLike:
		return fmt.Sprintf("%s NOT LIKE %s", quotedCol, b.param(n.Operand)), nil
	case OpILike:
		return fmt.Sprintf("%s ILIKE %s", quotedCol, b.param(n.Operand)), nil
	case OpNILike:
		return fmt.Sprintf("%s NOT ILIKE %s", quotedCol, b.param(n.Operand)), nil

	case OpRegex:
		pattern, err := regexOperand(n.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ~ %s", quotedCol, b.param(pattern)), nil
	case OpNRegex:
		pattern, err := regexOperand(n.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s !~ %s", quotedCol, b.param(pattern)), nil

	case OpIn:
		return compileInList(quotedCol, n.Operand, b, false)
	case OpNIn:
		return compileInList(quotedCol, n.Operand, b, true)

	case OpAny:
		return compileArrayOverlap(quotedCol, n.Operand, b, false)
	case OpNAny:
		return compileArrayOverlap(quotedCol, n.Operand, b, true)

	case OpAll:
		return compileArrayContains(quotedCol, n.Operand, b, false)
	case OpNAll:
		return compileArrayContains(quotedCol, n.Operand, b, true)

	case OpSize:
		return fmt.Sprintf("array_length(%s, 1) = %s", quotedCol, b.param(n.Operand)), nil

	case OpBetween:
		values, ok := n.Operand.([]any)
		if !ok || len(values) != 2 {
			return "", errInvalidOperatorData("$between requires exactly 2 operands")
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", quotedCol, b.param(values[0]), b.param(values[1])), nil

	case OpFind:
		return fmt.Sprintf("%s = ANY(%s)", b.param(n.Operand), quotedCol), nil

	case OpText:
		return fmt.Sprintf("to_tsvector(%s) @@ plainto_tsquery(%s)", quotedCol, b.param(n.Operand)), nil

	case OpExists:
		want, ok := n.Operand.(bool)
		if !ok {
			return "", errInvalidOperatorData("$exists requires a boolean operand")
		}
		if want {
			return quotedCol + " IS NOT NULL", nil
		}
		return quotedCol + " IS NULL", nil

	case OpNull:
		want, ok := n.Operand.(bool)
		if !ok {
			return "", errInvalidOperatorData("$null requires a boolean operand")
		}
		if want {
			return quotedCol + " IS NULL", nil
		}
		return quotedCol + " IS NOT NULL", nil

	default:
		return "", errUnsupportedOperator(string(n.Operator))
	}
}

func regexOperand(operand any) (string, error) {
	switch v := operand.(type) {
	case string:
		return v, nil
	case map[string]any:
		if _, hasFlags := v["flags"]; hasFlags {
			return "", errInvalidOperatorData("$regex flags are not supported by this compiler")
		}
		pattern, ok := v["pattern"].(string)
		if !ok {
			return "", errInvalidOperatorData("$regex requires a string pattern")
		}
		return pattern, nil
	default:
		return "", errInvalidOperatorData("$regex requires a string pattern")
	}
}

func compileInList(quotedCol string, operand any, b *builder, negate bool) (string, error) {
	values, ok := operand.([]any)
	if !ok {
		if negate {
			return fmt.Sprintf("%s <> %s", quotedCol, b.param(operand)), nil
		}
		return fmt.Sprintf("%s = %s", quotedCol, b.param(operand)), nil
	}
	if len(values) == 0 {
		if negate {
			return "1=1", nil
		}
		return "1=0", nil
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.param(v)
	}
	verb := "IN"
	if negate {
		verb = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", quotedCol, verb, strings.Join(placeholders, ", ")), nil
}

func compileArrayOverlap(quotedCol string, operand any, b *builder, negate bool) (string, error) {
	values, ok := operand.([]any)
	if !ok {
		values = []any{operand}
	}
	if len(values) == 0 {
		if negate {
			return "1=1", nil
		}
		return "1=0", nil
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.param(v)
	}
	sql := fmt.Sprintf("%s && ARRAY[%s]", quotedCol, strings.Join(placeholders, ", "))
	if negate {
		return fmt.Sprintf("NOT (%s)", sql), nil
	}
	return sql, nil
}

func compileArrayContains(quotedCol string, operand any, b *builder, negate bool) (string, error) {
	values, ok := operand.([]any)
	if !ok {
		values = []any{operand}
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.param(v)
	}
	sql := fmt.Sprintf("%s @> ARRAY[%s]", quotedCol, strings.Join(placeholders, ", "))
	if negate {
		return fmt.Sprintf("NOT (%s)", sql), nil
	}
	return sql, nil
}
