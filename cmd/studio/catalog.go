package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/config"
)

// openCatalog selects the catalog backend: Postgres when DATABASE_URL is
// set, a SQLite file when STUDIO_SQLITE is set, otherwise an in-memory
// SQLite catalog seeded with the demo data so every command works out of
// the box.
func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Reader, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres catalog: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres catalog: %w", err)
		}
		return catalog.NewPostgresReader(db), func() { _ = db.Close() }, nil

	case cfg.SQLitePath != "":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite catalog: %w", err)
		}
		reader, err := catalog.NewSQLiteReader(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return reader, func() { _ = db.Close() }, nil

	default:
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, nil, fmt.Errorf("open demo catalog: %w", err)
		}
		reader, err := catalog.NewSQLiteReader(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := reader.Seed(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("seed demo catalog: %w", err)
		}
		return reader, func() { _ = db.Close() }, nil
	}
}
