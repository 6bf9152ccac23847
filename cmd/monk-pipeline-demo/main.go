// Command monk-pipeline-demo is a wiring example, not a server: it builds
// a pipeline with the built-in observers registered, runs one Create
// mutation against an in-memory store double, and prints the result. It
// exists to show how the pieces in internal/observer, internal/builtin,
// internal/filter, and internal/record compose — nothing here reaches an
// HTTP framework or a real database.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ianzepp/monk-api/internal/builtin"
	"github.com/ianzepp/monk-api/internal/clock"
	"github.com/ianzepp/monk-api/internal/filter"
	"github.com/ianzepp/monk-api/internal/identity"
	"github.com/ianzepp/monk-api/internal/observer"
	"github.com/ianzepp/monk-api/internal/record"
	"github.com/ianzepp/monk-api/internal/schema"
	"github.com/ianzepp/monk-api/pkg/asyncexec"
	"github.com/ianzepp/monk-api/pkg/cache"
	"github.com/ianzepp/monk-api/pkg/config"
)

func main() {
	logr, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := newMemoryStore()
	compiler := filter.NewCompiler()
	clk := clock.System{}

	registry := observer.NewRegistry()
	registry.Register(builtin.NewRecordPreloader(compiler))
	registry.Register(builtin.NewSchemaValidator())
	registry.Register(builtin.NewQueryAccessControl())
	registry.Register(builtin.NewSoftDeleteGuard())
	registry.Register(builtin.NewQuerySafety(1000))
	registry.Register(builtin.NewTimestampEnricher(clk))
	registry.Register(builtin.NewSqlExecutor(compiler, clk))

	executor := asyncexec.New(asyncexec.Config{Workers: 4, BufferSize: 64, Logger: logr})
	executor.Start(context.Background())
	defer executor.Stop()

	pipeline := observer.New(observer.Config{
		Registry: registry,
		Executor: executor,
		Clock:    clk,
		Logger:   logr,
	})

	schemas := schema.NewStaticProvider(map[string]observer.SchemaDefinition{
		"account": {
			Name: "account",
			Columns: []observer.ColumnDefinition{
				{Name: "name", ValidationTag: "required"},
				{Name: "email", ValidationTag: "required,email"},
			},
		},
	})
	// A nil redis client disables caching; degrade to it if no cache is reachable.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unreachable, schema cache disabled", "error", err)
		redisClient = nil
	}
	schemaProvider := schema.New(schemas, redisClient, logr, time.Minute)

	accountSchema, err := schemaProvider.Resolve(context.Background(), "account")
	if err != nil {
		log.Fatalf("failed to resolve schema: %v", err)
	}

	idProvider := identity.New(cfg.Identity.Secret, cfg.Identity.Issuer)
	token := signDemoToken(cfg.Identity.Secret, cfg.Identity.Issuer, "user-1", []string{"team-a"})
	ctx := identity.TokenContext(context.Background(), token)

	rec := record.Create(record.FieldMap{"name": "Ada Lovelace", "email": "ada@example.com"}, clk.Now())

	result, err := pipeline.ExecuteMutation(ctx, record.OpCreate, "account", accountSchema, []*record.StatefulRecord{rec}, store, idProvider)
	if err != nil {
		log.Fatalf("pipeline execution failed: %v", err)
	}

	fmt.Printf("created record id=%v fields=%v warnings=%v\n", *result.Records[0].ID, result.Records[0].Modified, result.Warnings)
}

// signDemoToken signs a bearer token this demo can feed back into its own
// identity.JWTIdentityProvider, standing in for whatever collaborator
// would normally extract one from an inbound request.
func signDemoToken(secret, issuer, subject string, groups []string) string {
	claims := identity.Claims{
		Subject: subject,
		Groups:  groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("failed to sign demo token: %v", err)
	}
	return signed
}
