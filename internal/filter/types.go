// Package filter compiles the caller-reachable filter language (spec §3,
// §4.1) into parameterized SQL. It is the single place SQL text is ever
// assembled from untrusted shape — every other component that needs to
// narrow a query (access control, soft-delete guards) does so by
// constructing more filter AST, never by splicing SQL.
package filter

// Operator is the closed set of field-condition operators spec.md defines.
type Operator string

const (
	OpEq      Operator = "$eq"
	OpNe      Operator = "$ne"
	OpNeq     Operator = "$neq"
	OpGt      Operator = "$gt"
	OpGte     Operator = "$gte"
	OpLt      Operator = "$lt"
	OpLte     Operator = "$lte"
	OpLike    Operator = "$like"
	OpNLike   Operator = "$nlike"
	OpILike   Operator = "$ilike"
	OpNILike  Operator = "$nilike"
	OpRegex   Operator = "$regex"
	OpNRegex  Operator = "$nregex"
	OpIn      Operator = "$in"
	OpNIn     Operator = "$nin"
	OpAny     Operator = "$any"
	OpAll     Operator = "$all"
	OpNAny    Operator = "$nany"
	OpNAll    Operator = "$nall"
	OpSize    Operator = "$size"
	OpBetween Operator = "$between"
	OpFind    Operator = "$find"
	OpText    Operator = "$text"
	OpExists  Operator = "$exists"
	OpNull    Operator = "$null"
)

// LogicalOp is the closed set of group connectives.
type LogicalOp string

const (
	LogicalAnd  LogicalOp = "$and"
	LogicalOr   LogicalOp = "$or"
	LogicalNand LogicalOp = "$nand"
	LogicalNor  LogicalOp = "$nor"
	LogicalNot  LogicalOp = "$not"
)

// NodeKind distinguishes the two shapes a filter AST node can take.
type NodeKind string

const (
	NodeField NodeKind = "field"
	NodeGroup NodeKind = "group"
)

// Node is a filter AST node: either a field condition (column, operator,
// operand) or a logical group over child nodes. Children is evaluated in
// order — the compiler never reorders operands, so generated SQL is
// deterministic and the input's structure is always recoverable from it.
type Node struct {
	Kind NodeKind

	Field    string
	Operator Operator
	Operand  any

	Logical  LogicalOp
	Children []Node
}

// Field builds a field-condition node.
func Field(column string, op Operator, operand any) Node {
	return Node{Kind: NodeField, Field: column, Operator: op, Operand: operand}
}

// Eq is shorthand for Field(column, OpEq, value).
func Eq(column string, value any) Node {
	return Field(column, OpEq, value)
}

// And builds an $and group.
func And(children ...Node) Node {
	return Node{Kind: NodeGroup, Logical: LogicalAnd, Children: children}
}

// Or builds an $or group.
func Or(children ...Node) Node {
	return Node{Kind: NodeGroup, Logical: LogicalOr, Children: children}
}

// Nand builds a $nand group (NOT (AND ...)).
func Nand(children ...Node) Node {
	return Node{Kind: NodeGroup, Logical: LogicalNand, Children: children}
}

// Nor builds a $nor group (NOT (OR ...)).
func Nor(children ...Node) Node {
	return Node{Kind: NodeGroup, Logical: LogicalNor, Children: children}
}

// Not negates a single child node.
func Not(child Node) Node {
	return Node{Kind: NodeGroup, Logical: LogicalNot, Children: []Node{child}}
}

// Direction is the closed set of ORDER BY directions.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// OrderClause is one column in an ORDER BY list.
type OrderClause struct {
	Column    string
	Direction Direction
}

// FilterData is the structured document a caller (or a ring-2/ring-4
// observer narrowing a query) supplies to the compiler (spec §3).
type FilterData struct {
	Select         []string
	Where          *Node
	Order          []OrderClause
	Limit          *int
	Offset         *int
	IncludeTrashed bool
	IncludeDeleted bool
}

// SqlResult is the compiler's output: parameter-safe SQL text plus the
// positional values bound to its placeholders.
type SqlResult struct {
	SQL    string
	Params []any
}
