// Package catalog defines the read-only product catalog the studio
// generates from: features, pricing tiers, templates, bundle discounts, and
// coupons. Implementations back onto Postgres or SQLite; every returned
// value is a point-in-time snapshot and re-reads may observe newer data.
package catalog

import "time"

// MappingTarget names the dependency manifest a package entry belongs to.
type MappingTarget string

const (
	TargetServer MappingTarget = "server"
	TargetWeb    MappingTarget = "web"
)

// PackageKind partitions npm dependencies the way package.json does.
type PackageKind string

const (
	KindRuntime PackageKind = "runtime"
	KindDev     PackageKind = "dev"
	KindPeer    PackageKind = "peer"
)

// FileMapping relocates one file or directory from the template source tree
// into the emitted project. Source is a logical path (modules/<name>/...,
// core/..., or a legacy core-relative path); Destination is relative to the
// project root inside the archive.
type FileMapping struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// SchemaMapping points at a datamodel fragment contributed by a feature.
// Model is advisory; the merger discovers declared names by parsing.
type SchemaMapping struct {
	Model  string `json:"model"`
	Source string `json:"source"`
}

// EnvVar declares an environment variable the feature needs at runtime.
type EnvVar struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// PackageSpec declares one npm dependency a feature adds to a manifest
// target. Target defaults to the server manifest when absent.
type PackageSpec struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Kind    PackageKind   `json:"kind"`
	Target  MappingTarget `json:"target,omitempty"`
}

// ManifestTarget returns the effective target, applying the server default.
func (p PackageSpec) ManifestTarget() MappingTarget {
	if p.Target == "" {
		return TargetServer
	}
	return p.Target
}

// Feature is one sellable unit of functionality. Slug is the stable
// identifier; Requires lists the slugs this feature depends on. Price is in
// integer minor units and applies only when the feature is not already
// included by the order's tier.
type Feature struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Module      string `json:"module"`
	Price       int64  `json:"price"`
	IsActive    bool   `json:"isActive"`

	Requires       []string        `json:"requires,omitempty"`
	FileMappings   []FileMapping   `json:"fileMappings,omitempty"`
	SchemaMappings []SchemaMapping `json:"schemaMappings,omitempty"`
	EnvVars        []EnvVar        `json:"envVars,omitempty"`
	NPMPackages    []PackageSpec   `json:"npmPackages,omitempty"`
}

// Tier is a pricing tier. IncludedFeatures are bundled without extra charge.
type Tier struct {
	Slug             string   `json:"slug"`
	Name             string   `json:"name"`
	Price            int64    `json:"price"`
	IncludedFeatures []string `json:"includedFeatures"`
	DisplayOrder     int      `json:"displayOrder"`
	IsActive         bool     `json:"isActive"`
}

// Includes reports whether the tier bundles the given feature slug.
func (t Tier) Includes(slug string) bool {
	for _, s := range t.IncludedFeatures {
		if s == slug {
			return true
		}
	}
	return false
}

// Template is a preset feature selection layered on top of a tier.
type Template struct {
	Slug             string   `json:"slug"`
	Name             string   `json:"name"`
	IncludedFeatures []string `json:"includedFeatures"`
}

// DiscountType selects how a bundle or coupon value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Bundle is an automatic discount applied at quote time. ID fixes the
// application order (ascending). EligibilityExpr, when set, is a CEL
// expression over {tier, features, itemCount, subtotal} that must also hold.
type Bundle struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Type               DiscountType `json:"type"`
	Value              int64        `json:"value"`
	MinItems           int          `json:"minItems"`
	ApplicableTiers    []string     `json:"applicableTiers,omitempty"`
	ApplicableFeatures []string     `json:"applicableFeatures,omitempty"`
	StartsAt           *time.Time   `json:"startsAt,omitempty"`
	ExpiresAt          *time.Time   `json:"expiresAt,omitempty"`
	EligibilityExpr    string       `json:"eligibilityExpr,omitempty"`
	IsActive           bool         `json:"isActive"`
}

// ActiveWithin reports whether the bundle's optional activity window
// contains the given instant.
func (b Bundle) ActiveWithin(now time.Time) bool {
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return false
	}
	if b.ExpiresAt != nil && now.After(*b.ExpiresAt) {
		return false
	}
	return true
}

// Coupon is a customer-entered discount code. Codes are matched
// case-insensitively (stored uppercased).
type Coupon struct {
	Code        string       `json:"code"`
	Type        DiscountType `json:"type"`
	Value       int64        `json:"value"`
	MaxUses     *int         `json:"maxUses,omitempty"`
	UsedCount   int          `json:"usedCount"`
	MinPurchase *int64       `json:"minPurchase,omitempty"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	IsActive    bool         `json:"isActive"`
}
