package catalog

import (
	"context"
	"errors"
)

// ErrTierNotFound is returned by Tier for unknown or inactive-slug lookups
// where the store cannot produce a row at all.
var ErrTierNotFound = errors.New("catalog: tier not found")

// Reader exposes read-only catalog lookups. Implementations back onto a
// relational store; callers treat results as immutable snapshots and must
// not assume a second read returns the same data.
//
// Optional lookups (Template, CouponByCode) return (nil, nil) when the slug
// or code simply does not exist; errors are reserved for store failures.
type Reader interface {
	// Features returns the records for the given slugs. Unknown slugs are
	// omitted from the result rather than reported as errors; callers that
	// need the distinction compare lengths.
	Features(ctx context.Context, slugs []string) ([]Feature, error)

	// Tier returns the tier for slug, or ErrTierNotFound.
	Tier(ctx context.Context, slug string) (*Tier, error)

	// Template returns the template for slug, or nil when absent.
	Template(ctx context.Context, slug string) (*Template, error)

	// ActiveBundles returns all active bundle discounts in ascending ID
	// order, which is also their application order.
	ActiveBundles(ctx context.Context) ([]Bundle, error)

	// CouponByCode returns the coupon for code (matched case-insensitively),
	// or nil when absent.
	CouponByCode(ctx context.Context, code string) (*Coupon, error)
}
