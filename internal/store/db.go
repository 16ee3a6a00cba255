package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens the shared pgx pool behind database/sql.
func OpenPostgres(ctx context.Context, databaseURL string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 20
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetMaxOpenConns(maxOpen)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Options selects and configures a backend.
type Options struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
	MaxPoolSize   int
}

// Open builds the gateway for opts.Driver: mongo, postgres or memory.
func Open(ctx context.Context, opts Options) (Gateway, error) {
	switch opts.Driver {
	case "", "mongo":
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase, uint64(max(opts.MaxPoolSize, 0)))
	case "postgres":
		db, err := OpenPostgres(ctx, opts.DatabaseURL, opts.MaxPoolSize)
		if err != nil {
			return nil, err
		}
		return NewPostgresGateway(db), nil
	case "memory":
		return NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
