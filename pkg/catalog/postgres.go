package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresReader implements Reader against the production catalog tables.
type PostgresReader struct {
	db *sql.DB
}

func NewPostgresReader(db *sql.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

const pgCatalogSchema = `
CREATE TABLE IF NOT EXISTS catalog_features (
	slug TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	module TEXT NOT NULL,
	price BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	requires TEXT[] NOT NULL DEFAULT '{}',
	file_mappings JSONB,
	schema_mappings JSONB,
	env_vars JSONB,
	npm_packages JSONB
);

CREATE TABLE IF NOT EXISTS catalog_tiers (
	slug TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price BIGINT NOT NULL DEFAULT 0,
	included_features TEXT[] NOT NULL DEFAULT '{}',
	display_order INT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS catalog_templates (
	slug TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	included_features TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS catalog_bundles (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	discount_type TEXT NOT NULL,
	discount_value BIGINT NOT NULL,
	min_items INT NOT NULL DEFAULT 0,
	applicable_tiers TEXT[] NOT NULL DEFAULT '{}',
	applicable_features TEXT[] NOT NULL DEFAULT '{}',
	starts_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	eligibility_expr TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS catalog_coupons (
	code TEXT PRIMARY KEY,
	discount_type TEXT NOT NULL,
	discount_value BIGINT NOT NULL,
	max_uses INT,
	used_count INT NOT NULL DEFAULT 0,
	min_purchase BIGINT,
	expires_at TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);
`

// Init creates the catalog tables when they do not yet exist.
func (r *PostgresReader) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, pgCatalogSchema)
	return err
}

func (r *PostgresReader) Features(ctx context.Context, slugs []string) ([]Feature, error) {
	if len(slugs) == 0 {
		return nil, nil
	}

	query := `
		SELECT slug, name, description, module, price, is_active,
		       requires, file_mappings, schema_mappings, env_vars, npm_packages
		FROM catalog_features
		WHERE slug = ANY($1)
		ORDER BY slug
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(slugs))
	if err != nil {
		return nil, fmt.Errorf("catalog: query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var features []Feature
	for rows.Next() {
		var f Feature
		var requires pq.StringArray
		var fileRaw, schemaRaw, envRaw, npmRaw []byte
		if err := rows.Scan(&f.Slug, &f.Name, &f.Description, &f.Module, &f.Price, &f.IsActive,
			&requires, &fileRaw, &schemaRaw, &envRaw, &npmRaw); err != nil {
			return nil, fmt.Errorf("catalog: scan feature: %w", err)
		}
		f.Requires = []string(requires)
		if err := decodeFeatureColumns(&f, fileRaw, schemaRaw, envRaw, npmRaw); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate features: %w", err)
	}
	return features, nil
}

func (r *PostgresReader) Tier(ctx context.Context, slug string) (*Tier, error) {
	query := `
		SELECT slug, name, price, included_features, display_order, is_active
		FROM catalog_tiers
		WHERE slug = $1
	`
	var t Tier
	var included pq.StringArray
	err := r.db.QueryRowContext(ctx, query, slug).
		Scan(&t.Slug, &t.Name, &t.Price, &included, &t.DisplayOrder, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query tier %q: %w", slug, err)
	}
	t.IncludedFeatures = []string(included)
	return &t, nil
}

func (r *PostgresReader) Template(ctx context.Context, slug string) (*Template, error) {
	query := `
		SELECT slug, name, included_features
		FROM catalog_templates
		WHERE slug = $1
	`
	var t Template
	var included pq.StringArray
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&t.Slug, &t.Name, &included)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query template %q: %w", slug, err)
	}
	t.IncludedFeatures = []string(included)
	return &t, nil
}

func (r *PostgresReader) ActiveBundles(ctx context.Context) ([]Bundle, error) {
	query := `
		SELECT id, name, discount_type, discount_value, min_items,
		       applicable_tiers, applicable_features, starts_at, expires_at,
		       eligibility_expr, is_active
		FROM catalog_bundles
		WHERE is_active
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: query bundles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bundles []Bundle
	for rows.Next() {
		var b Bundle
		var tiers, feats pq.StringArray
		var startsAt, expiresAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.Type, &b.Value, &b.MinItems,
			&tiers, &feats, &startsAt, &expiresAt, &b.EligibilityExpr, &b.IsActive); err != nil {
			return nil, fmt.Errorf("catalog: scan bundle: %w", err)
		}
		b.ApplicableTiers = []string(tiers)
		b.ApplicableFeatures = []string(feats)
		if startsAt.Valid {
			t := startsAt.Time.UTC()
			b.StartsAt = &t
		}
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			b.ExpiresAt = &t
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate bundles: %w", err)
	}
	return bundles, nil
}

func (r *PostgresReader) CouponByCode(ctx context.Context, code string) (*Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	query := `
		SELECT code, discount_type, discount_value, max_uses, used_count,
		       min_purchase, expires_at, is_active
		FROM catalog_coupons
		WHERE code = $1
	`
	var c Coupon
	var maxUses sql.NullInt64
	var minPurchase sql.NullInt64
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).
		Scan(&c.Code, &c.Type, &c.Value, &maxUses, &c.UsedCount, &minPurchase, &expiresAt, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query coupon %q: %w", code, err)
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	if minPurchase.Valid {
		v := minPurchase.Int64
		c.MinPurchase = &v
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		c.ExpiresAt = &t
	}
	return &c, nil
}
