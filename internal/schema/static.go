package schema

import (
	"context"

	"github.com/ianzepp/monk-api/internal/observer"
	apperrors "github.com/ianzepp/monk-api/pkg/errors"
)

// StaticProvider is a BackingProvider over an in-memory set of
// definitions, used by tests and the wiring example where no system
// tenant is available.
type StaticProvider struct {
	definitions map[string]observer.SchemaDefinition
}

// NewStaticProvider builds a StaticProvider from a fixed definition set.
func NewStaticProvider(definitions map[string]observer.SchemaDefinition) *StaticProvider {
	return &StaticProvider{definitions: definitions}
}

func (p *StaticProvider) Resolve(ctx context.Context, schemaName string) (observer.SchemaDefinition, error) {
	def, ok := p.definitions[schemaName]
	if !ok {
		return observer.SchemaDefinition{}, apperrors.New(apperrors.KindNotFound, "SCHEMA_NOT_FOUND", "unknown schema: "+schemaName)
	}
	return def, nil
}
