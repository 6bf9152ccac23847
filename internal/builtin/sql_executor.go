package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ianzepp/monk-api/internal/clock"
	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
)

// SqlExecutor runs at ring 5 (Database) — the only ring permitted to
// touch the store. For a Select it compiles and runs the accumulated
// filter and wraps each row as a no-change record; for a mutation it
// derives each record's write plan and issues one statement per record
// (none for a NoOp plan). Any error here aborts the invocation outright (spec §5: ring 5
// failures never reach ring 6).
type SqlExecutor struct {
	Compiler *filter.Compiler
	Clock    clock.Clock
}

// NewSqlExecutor builds a SqlExecutor over a filter compiler and clock.
func NewSqlExecutor(compiler *filter.Compiler, clk clock.Clock) *SqlExecutor {
	return &SqlExecutor{Compiler: compiler, Clock: clk}
}

func (o *SqlExecutor) Name() string { return "sql_executor" }
func (o *SqlExecutor) Ring() observer.Ring { return observer.RingDatabase }
func (o *SqlExecutor) Priority() int { return 0 }
func (o *SqlExecutor) Timeout() time.Duration { return 0 }
func (o *SqlExecutor) AppliesToOperation(op record.Operation) bool { return true }
func (o *SqlExecutor) AppliesToSchema(schemaName string) bool { return true }

func (o *SqlExecutor) Execute(ctx context.Context, octx *observer.Context) error {
	if octx.Operation == record.OpSelect {
		return o.executeSelect(ctx, octx)
	}
	for _, rec := range octx.Records {
		if err := o.executeMutation(ctx, octx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (o *SqlExecutor) executeSelect(ctx context.Context, octx *observer.Context) error {
	fd := filter.FilterData{}
	if octx.Filter != nil {
		fd = *octx.Filter
	}
	result, err := o.Compiler.CompileSelect(octx.SchemaName, fd, 0)
	if err != nil {
		return err
	}
	rows, err := octx.Store.Query(ctx, result.SQL, result.Params)
	if err != nil {
		return err
	}

	now := o.Clock.Now()
	records := make([]*record.StatefulRecord, len(rows))
	for i, row := range rows {
		records[i] = record.Existing(row, nil, record.RecordNoChange, now)
	}
	octx.Records = records
	return nil
}

func (o *SqlExecutor) executeMutation(ctx context.Context, octx *observer.Context, rec *record.StatefulRecord) error {
	plan, err := rec.ToWritePlan(octx.SchemaName)
	if err != nil {
		return err
	}

	switch plan.Kind {
	case record.SqlNoOp:
		return nil

	case record.SqlInsert:
		return o.executeInsert(ctx, octx, rec, plan)

	case record.SqlUpdate:
		return o.executeUpdate(ctx, octx, rec, plan)

	case record.SqlSoftDelete:
		return o.executeSoftDelete(ctx, octx, rec, plan)

	case record.SqlRevert:
		return o.executeRevert(ctx, octx, rec, plan)

	default:
		return nil
	}
}

func (o *SqlExecutor) executeInsert(ctx context.Context, octx *observer.Context, rec *record.StatefulRecord, plan record.SqlOperation) error {
	quotedTable, err := filter.ValidateIdentifier(plan.Table)
	if err != nil {
		return err
	}

	columns := make([]string, len(plan.Fields))
	placeholders := make([]string, len(plan.Fields))
	for i, f := range plan.Fields {
		quoted, err := filter.ValidateIdentifier(f)
		if err != nil {
			return err
		}
		columns[i] = quoted
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", quotedTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	rows, err := octx.Store.Query(ctx, sql, plan.Values)
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		rec.HydrateOriginal(rows[0])
		rec.Modified = rows[0]
		if idVal, ok := rows[0]["id"].(string); ok {
			rec.ID = &idVal
		}
	}
	return nil
}

func (o *SqlExecutor) executeUpdate(ctx context.Context, octx *observer.Context, rec *record.StatefulRecord, plan record.SqlOperation) error {
	quotedTable, err := filter.ValidateIdentifier(plan.Table)
	if err != nil {
		return err
	}
	idCol, _ := filter.ValidateIdentifier("id")

	columns := make([]string, 0, len(plan.Updates))
	for col := range plan.Updates {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	setParts := make([]string, len(columns))
	params := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		quoted, err := filter.ValidateIdentifier(col)
		if err != nil {
			return err
		}
		params = append(params, plan.Updates[col])
		setParts[i] = fmt.Sprintf("%s = $%d", quoted, i+1)
	}
	params = append(params, plan.ID)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *", quotedTable, strings.Join(setParts, ", "), idCol, len(params))
	rows, err := octx.Store.Query(ctx, sql, params)
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		rec.HydrateOriginal(rows[0])
		rec.Modified = rows[0]
	}
	return nil
}

func (o *SqlExecutor) executeSoftDelete(ctx context.Context, octx *observer.Context, rec *record.StatefulRecord, plan record.SqlOperation) error {
	quotedTable, err := filter.ValidateIdentifier(plan.Table)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`UPDATE %s SET "trashed_at" = $1 WHERE "id" = $2 AND "trashed_at" IS NULL RETURNING *`, quotedTable)
	rows, err := octx.Store.Query(ctx, sql, []any{o.Clock.Now(), plan.ID})
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		rec.HydrateOriginal(rows[0])
		rec.Modified = rows[0]
	}
	return nil
}

func (o *SqlExecutor) executeRevert(ctx context.Context, octx *observer.Context, rec *record.StatefulRecord, plan record.SqlOperation) error {
	quotedTable, err := filter.ValidateIdentifier(plan.Table)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`UPDATE %s SET "trashed_at" = NULL, "deleted_at" = NULL WHERE "id" = $1 RETURNING *`, quotedTable)
	rows, err := octx.Store.Query(ctx, sql, []any{plan.ID})
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		rec.HydrateOriginal(rows[0])
		rec.Modified = rows[0]
	}
	return nil
}

