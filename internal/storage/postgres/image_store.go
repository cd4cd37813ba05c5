// Package postgres provides the Postgres-backed catalog of harvested images.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ImageStoreConfig controls the Postgres connection pool used for image rows.
type ImageStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ImageStore records every harvested image once per domain.
type ImageStore struct {
	pool  execCloser
	table string
}

// NewImageStore creates a Postgres-backed ImageStore using the provided config.
func NewImageStore(ctx context.Context, cfg ImageStoreConfig) (*ImageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ImageStore{pool: pool, table: table}, nil
}

// NewImageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewImageStoreWithPool(pool execCloser, table string) (*ImageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ImageStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "harvested_images"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ImageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the image table when it does not exist.
func (s *ImageStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	domain        TEXT NOT NULL,
	image_url     TEXT NOT NULL,
	product_url   TEXT NOT NULL DEFAULT '',
	product_title TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL,
	first_seen    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (domain, image_url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordImages inserts the items of one domain, leaving already known images untouched.
func (s *ImageStore) RecordImages(ctx context.Context, runID, domain string, items []crawler.Item) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("image store is not configured")
	}
	if len(items) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (domain, image_url, product_url, product_title, run_id)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (domain, image_url) DO NOTHING`, s.table)

	for _, item := range items {
		if _, err := s.pool.Exec(ctx, query, domain, item.ImageURL, item.ProductURL, item.ProductTitle, runID); err != nil {
			return fmt.Errorf("insert image %s: %w", item.ImageURL, err)
		}
	}
	return nil
}
