package main

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ianzepp/monk-api/internal/observer"
)

// memoryStore is a minimal in-process observer.StoreHandle double: it
// stores the row of an INSERT ... RETURNING * and returns it; every other
// query returns all stored rows unchanged. That is enough to drive this
// demo's single Create without a real database connection.
type memoryStore struct {
	mu   sync.Mutex
	rows map[string]map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]map[string]any)}
}

func (s *memoryStore) Execute(ctx context.Context, sql string, params []any) (int64, error) {
	return 0, nil
}

func (s *memoryStore) Query(ctx context.Context, sql string, params []any) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.HasPrefix(sql, "INSERT INTO"):
		columns := insertColumns(sql)
		row := map[string]any{"id": uuid.NewString()}
		for i, col := range columns {
			if i < len(params) {
				row[col] = params[i]
			}
		}
		s.rows[row["id"].(string)] = row
		return []map[string]any{row}, nil

	default:
		rows := make([]map[string]any, 0, len(s.rows))
		for _, row := range s.rows {
			rows = append(rows, row)
		}
		return rows, nil
	}
}

func (s *memoryStore) Begin(ctx context.Context) (observer.StoreHandle, error) {
	return s, nil
}

func (s *memoryStore) Commit(ctx context.Context) error   { return nil }
func (s *memoryStore) Rollback(ctx context.Context) error { return nil }

// insertColumns extracts the quoted column list out of an
// `INSERT INTO "table" ("a", "b") VALUES (...)` statement.
func insertColumns(sql string) []string {
	open := strings.Index(sql, "(")
	shut := strings.Index(sql, ")")
	if open < 0 || shut < 0 || shut <= open {
		return nil
	}
	raw := strings.Split(sql[open+1:shut], ",")
	columns := make([]string, len(raw))
	for i, col := range raw {
		columns[i] = strings.Trim(strings.TrimSpace(col), `"`)
	}
	return columns
}
