package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteReader implements Reader against a local SQLite file. It exists for
// development and demos; production deployments use PostgresReader.
type SQLiteReader struct {
	db *sql.DB
}

func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	r := &SQLiteReader{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteReader) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS catalog_features (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		module TEXT NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		requires JSON,
		file_mappings JSON,
		schema_mappings JSON,
		env_vars JSON,
		npm_packages JSON
	);

	CREATE TABLE IF NOT EXISTS catalog_tiers (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		included_features JSON,
		display_order INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS catalog_templates (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		included_features JSON
	);

	CREATE TABLE IF NOT EXISTS catalog_bundles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		discount_type TEXT NOT NULL,
		discount_value INTEGER NOT NULL,
		min_items INTEGER NOT NULL DEFAULT 0,
		applicable_tiers JSON,
		applicable_features JSON,
		starts_at TEXT,
		expires_at TEXT,
		eligibility_expr TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS catalog_coupons (
		code TEXT PRIMARY KEY,
		discount_type TEXT NOT NULL,
		discount_value INTEGER NOT NULL,
		max_uses INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		min_purchase INTEGER,
		expires_at TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	);`
	_, err := r.db.ExecContext(context.Background(), query)
	return err
}

func (r *SQLiteReader) Features(ctx context.Context, slugs []string) ([]Feature, error) {
	if len(slugs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(slugs)), ",")
	query := fmt.Sprintf(`
		SELECT slug, name, description, module, price, is_active,
		       requires, file_mappings, schema_mappings, env_vars, npm_packages
		FROM catalog_features
		WHERE slug IN (%s)
		ORDER BY slug
	`, placeholders)

	args := make([]any, len(slugs))
	for i, s := range slugs {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var features []Feature
	for rows.Next() {
		var f Feature
		var requiresRaw sql.NullString
		var fileRaw, schemaRaw, envRaw, npmRaw sql.NullString
		if err := rows.Scan(&f.Slug, &f.Name, &f.Description, &f.Module, &f.Price, &f.IsActive,
			&requiresRaw, &fileRaw, &schemaRaw, &envRaw, &npmRaw); err != nil {
			return nil, fmt.Errorf("catalog: scan feature: %w", err)
		}
		if requiresRaw.Valid && requiresRaw.String != "" {
			if err := json.Unmarshal([]byte(requiresRaw.String), &f.Requires); err != nil {
				return nil, &DecodeError{Feature: f.Slug, Column: "requires", Err: err}
			}
		}
		if err := decodeFeatureColumns(&f,
			nullBytes(fileRaw), nullBytes(schemaRaw), nullBytes(envRaw), nullBytes(npmRaw)); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate features: %w", err)
	}
	return features, nil
}

func (r *SQLiteReader) Tier(ctx context.Context, slug string) (*Tier, error) {
	query := `
		SELECT slug, name, price, included_features, display_order, is_active
		FROM catalog_tiers
		WHERE slug = ?
	`
	var t Tier
	var included sql.NullString
	err := r.db.QueryRowContext(ctx, query, slug).
		Scan(&t.Slug, &t.Name, &t.Price, &included, &t.DisplayOrder, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query tier %q: %w", slug, err)
	}
	if included.Valid && included.String != "" {
		if err := json.Unmarshal([]byte(included.String), &t.IncludedFeatures); err != nil {
			return nil, fmt.Errorf("catalog: tier %q included_features: %w", slug, err)
		}
	}
	return &t, nil
}

func (r *SQLiteReader) Template(ctx context.Context, slug string) (*Template, error) {
	query := `
		SELECT slug, name, included_features
		FROM catalog_templates
		WHERE slug = ?
	`
	var t Template
	var included sql.NullString
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&t.Slug, &t.Name, &included)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query template %q: %w", slug, err)
	}
	if included.Valid && included.String != "" {
		if err := json.Unmarshal([]byte(included.String), &t.IncludedFeatures); err != nil {
			return nil, fmt.Errorf("catalog: template %q included_features: %w", slug, err)
		}
	}
	return &t, nil
}

func (r *SQLiteReader) ActiveBundles(ctx context.Context) ([]Bundle, error) {
	query := `
		SELECT id, name, discount_type, discount_value, min_items,
		       applicable_tiers, applicable_features, starts_at, expires_at,
		       eligibility_expr, is_active
		FROM catalog_bundles
		WHERE is_active = 1
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
		var tiersRaw, featsRaw sql.NullString
		var startsAt, expiresAt sql.NullString
		if err := rows.Scan(&b.ID, &b.Name, &b.Type, &b.Value, &b.MinItems,
			&tiersRaw, &featsRaw, &startsAt, &expiresAt, &b.EligibilityExpr, &b.IsActive); err != nil {
			return nil, fmt.Errorf("catalog: scan bundle: %w", err)
		}
		if tiersRaw.Valid && tiersRaw.String != "" {
			if err := json.Unmarshal([]byte(tiersRaw.String), &b.ApplicableTiers); err != nil {
				return nil, fmt.Errorf("catalog: bundle %d applicable_tiers: %w", b.ID, err)
			}
		}
		if featsRaw.Valid && featsRaw.String != "" {
			if err := json.Unmarshal([]byte(featsRaw.String), &b.ApplicableFeatures); err != nil {
				return nil, fmt.Errorf("catalog: bundle %d applicable_features: %w", b.ID, err)
			}
		}
		b.StartsAt = parseNullableTime(startsAt)
		b.ExpiresAt = parseNullableTime(expiresAt)
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate bundles: %w", err)
	}
	return bundles, nil
}

func (r *SQLiteReader) CouponByCode(ctx context.Context, code string) (*Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	query := `
		SELECT code, discount_type, discount_value, max_uses, used_count,
		       min_purchase, expires_at, is_active
		FROM catalog_coupons
		WHERE code = ?
	`
	var c Coupon
	var maxUses, minPurchase sql.NullInt64
	var expiresAt sql.NullString
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
	c.ExpiresAt = parseNullableTime(expiresAt)
	return &c, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid || s.String == "" {
		return nil
	}
	return []byte(s.String)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

const sqliteSeed = `
INSERT OR IGNORE INTO catalog_features (slug, name, description, module, price, is_active, requires, file_mappings, schema_mappings, env_vars, npm_packages) VALUES
('auth', 'Authentication', 'JWT auth with refresh tokens and password reset', 'auth', 0, 1,
 '[]',
 '[{"source":"modules/auth/server","destination":"backend/src/modules/auth"},{"source":"modules/auth/web","destination":"web/src/features/auth"}]',
 '[{"model":"User","source":"modules/auth/schema.prisma"}]',
 '[{"key":"JWT_SECRET","description":"Secret used to sign access tokens","required":true},{"key":"JWT_EXPIRES_IN","description":"Access token lifetime","default":"15m"}]',
 '[{"name":"bcryptjs","version":"^2.4.3","kind":"runtime"},{"name":"@types/bcryptjs","version":"^2.4.6","kind":"dev"}]'),
('payments', 'Payments', 'Stripe checkout, webhooks, and billing portal', 'billing', 14900, 1,
 '["auth"]',
 '[{"source":"modules/payments/server","destination":"backend/src/modules/payments"},{"source":"modules/payments/web","destination":"web/src/features/payments"}]',
 '[{"model":"Subscription","source":"modules/payments/schema.prisma"}]',
 '[{"key":"STRIPE_SECRET_KEY","description":"Stripe API secret key","required":true},{"key":"STRIPE_WEBHOOK_SECRET","description":"Signing secret for webhook verification","required":true}]',
 '[{"name":"stripe","version":"^14.21.0","kind":"runtime"}]'),
('analytics', 'Analytics', 'Event tracking and usage dashboards', 'analytics', 9900, 1,
 '[]',
 '[{"source":"modules/analytics/server","destination":"backend/src/modules/analytics"}]',
 '[{"model":"Event","source":"modules/analytics/schema.prisma"}]',
 '[{"key":"ANALYTICS_WRITE_KEY","description":"Ingestion write key"}]',
 '[]'),
('email', 'Transactional Email', 'Templated email delivery with retries', 'messaging', 4900, 1,
 '[]',
 '[{"source":"modules/email/server","destination":"backend/src/modules/email"}]',
 '[]',
 '[{"key":"SMTP_URL","description":"SMTP connection string","required":true},{"key":"EMAIL_FROM","description":"Default sender address","default":"noreply@example.com"}]',
 '[{"name":"nodemailer","version":"^6.9.13","kind":"runtime"}]'),
('admin', 'Admin Panel', 'Back-office CRUD over catalog entities', 'admin', 19900, 1,
 '["auth"]',
 '[{"source":"modules/admin/web","destination":"web/src/features/admin"}]',
 '[]',
 '[]',
 '[{"name":"@tanstack/react-table","version":"^8.13.2","kind":"runtime","target":"web"}]');

INSERT OR IGNORE INTO catalog_tiers (slug, name, price, included_features, display_order, is_active) VALUES
('starter', 'Starter', 9900, '[]', 1, 1),
('professional', 'Professional', 29900, '["auth"]', 2, 1),
('enterprise', 'Enterprise', 79900, '["auth","analytics"]', 3, 1);

INSERT OR IGNORE INTO catalog_templates (slug, name, included_features) VALUES
('saas', 'SaaS Starter', '["email"]');

INSERT OR IGNORE INTO catalog_bundles (name, discount_type, discount_value, min_items, applicable_tiers, applicable_features, eligibility_expr, is_active) VALUES
('Growth pack', 'percentage', 10, 3, '[]', '[]', '', 1);

INSERT OR IGNORE INTO catalog_coupons (code, discount_type, discount_value, max_uses, used_count, min_purchase, is_active) VALUES
('LAUNCH20', 'percentage', 20, 100, 0, NULL, 1);
`

// Seed loads a small demo catalog for local development. Existing rows are
// left untouched.
func (r *SQLiteReader) Seed(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteSeed)
	if err != nil {
		return fmt.Errorf("catalog: seed: %w", err)
	}
	return nil
}
