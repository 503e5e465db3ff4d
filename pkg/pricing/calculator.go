// Package pricing quotes an order: tier price plus non-included add-ons,
// minus bundle and coupon discounts, plus a reserved tax line. Quotes are
// computed at order time and persisted on the order; generation never
// re-prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/diag"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
)

// ErrInvalidTier is returned when the tier is unknown or inactive.
var ErrInvalidTier = errors.New("pricing: invalid or inactive tier")

// UnknownFeatureError is returned when a selected feature slug has no
// catalog record. Selections are paid for, so silently dropping one would
// misprice the order.
type UnknownFeatureError struct {
	Slug string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("pricing: unknown feature %q", e.Slug)
}

// AppliedDiscount is one bundle or coupon line in the quote.
type AppliedDiscount struct {
	Name   string
	Type   catalog.DiscountType
	Amount int64
}

// Quote is the full pricing result.
type Quote struct {
	TierPrice       int64
	FeaturesPrice   int64
	Subtotal        int64
	BundleDiscounts []AppliedDiscount
	CouponDiscount  *AppliedDiscount
	TotalDiscount   int64
	Tax             int64
	Total           int64
	Currency        string
	Breakdown       []string
	Warnings        []diag.Warning
}

// Totals converts the quote into the shape persisted on the order.
func (q *Quote) Totals() order.Totals {
	return order.Totals{
		Subtotal: q.Subtotal,
		Discount: q.TotalDiscount,
		Total:    q.Total,
		Currency: q.Currency,
	}
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCurrency overrides the quoted currency code (default "usd").
func WithCurrency(code string) Option {
	return func(c *Calculator) { c.currency = code }
}

// WithTaxBasisPoints sets the reserved tax rate. The default is 0 until a
// real tax engine drives it.
func WithTaxBasisPoints(bp int64) Option {
	return func(c *Calculator) { c.taxBP = bp }
}

// WithClock replaces the wall clock, used by tests to pin bundle and coupon
// activity windows.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// Calculator prices orders against a catalog snapshot.
type Calculator struct {
	catalog  catalog.Reader
	currency string
	taxBP    int64
	now      func() time.Time

	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCalculator builds a Calculator. The CEL environment evaluates optional
// bundle eligibility expressions over the quote context.
func NewCalculator(reader catalog.Reader, opts ...Option) (*Calculator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tier", cel.StringType),
		cel.Variable("features", cel.ListType(cel.StringType)),
		cel.Variable("itemCount", cel.IntType),
		cel.Variable("subtotal", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("pricing: cel environment: %w", err)
	}

	c := &Calculator{
		catalog:  reader,
		currency: "usd",
		now:      time.Now,
		env:      env,
		programs: make(map[string]cel.Program),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Calculate prices one selection. Steps: tier price, add-on prices for
// features the tier does not include, bundle discounts in ascending bundle
// ID order, then the coupon, then tax, clamped at zero.
func (c *Calculator) Calculate(ctx context.Context, tierSlug string, selectedFeatures []string, couponCode string) (*Quote, error) {
	tier, err := c.catalog.Tier(ctx, tierSlug)
	if errors.Is(err, catalog.ErrTierNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tierSlug)
	}
	if err != nil {
		return nil, err
	}
	if !tier.IsActive {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tierSlug)
	}

	selected := dedupeSorted(selectedFeatures)
	features, err := c.catalog.Features(ctx, selected)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]catalog.Feature, len(features))
	for _, f := range features {
		bySlug[f.Slug] = f
	}
	for _, slug := range selected {
		if _, ok := bySlug[slug]; !ok {
			return nil, &UnknownFeatureError{Slug: slug}
		}
	}

	q := &Quote{TierPrice: tier.Price, Currency: c.currency}
	q.Breakdown = append(q.Breakdown, fmt.Sprintf("tier %s: %d", tier.Slug, tier.Price))

	for _, slug := range selected {
		f := bySlug[slug]
		if tier.Includes(slug) {
			q.Breakdown = append(q.Breakdown, fmt.Sprintf("feature %s: included in tier", slug))
			continue
		}
		q.FeaturesPrice += f.Price
		q.Breakdown = append(q.Breakdown, fmt.Sprintf("feature %s: %d", slug, f.Price))
	}
	q.Subtotal = q.TierPrice + q.FeaturesPrice

	now := c.now().UTC()
	bundles, err := c.catalog.ActiveBundles(ctx)
	if err != nil {
		return nil, err
	}
	var bundleTotal int64
	for _, b := range bundles {
		eligible, warning := c.bundleEligible(b, tier.Slug, selected, q.Subtotal, now)
		if warning != nil {
			q.Warnings = append(q.Warnings, *warning)
		}
		if !eligible {
			continue
		}
		amount := discountAmount(b.Type, b.Value, q.Subtotal)
		bundleTotal += amount
		q.BundleDiscounts = append(q.BundleDiscounts, AppliedDiscount{Name: b.Name, Type: b.Type, Amount: amount})
		q.Breakdown = append(q.Breakdown, fmt.Sprintf("bundle %s: -%d", b.Name, amount))
	}

	var couponAmount int64
	if couponCode != "" {
		code := strings.ToUpper(strings.TrimSpace(couponCode))
		coupon, err := c.catalog.CouponByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		switch {
		case coupon == nil:
			q.Breakdown = append(q.Breakdown, fmt.Sprintf("coupon %s: not applied (unknown code)", code))
		default:
			if reason := couponIneligibleReason(coupon, q.Subtotal, now); reason != "" {
				q.Breakdown = append(q.Breakdown, fmt.Sprintf("coupon %s: not applied (%s)", coupon.Code, reason))
			} else {
				couponAmount = discountAmount(coupon.Type, coupon.Value, q.Subtotal)
				q.CouponDiscount = &AppliedDiscount{Name: coupon.Code, Type: coupon.Type, Amount: couponAmount}
				q.Breakdown = append(q.Breakdown, fmt.Sprintf("coupon %s: -%d", coupon.Code, couponAmount))
			}
		}
	}

	q.TotalDiscount = bundleTotal + couponAmount
	q.Tax = basisPointsOf(q.Subtotal-q.TotalDiscount, c.taxBP)
	q.Total = clampNonNegative(q.Subtotal - q.TotalDiscount + q.Tax)
	q.Breakdown = append(q.Breakdown,
		fmt.Sprintf("tax: %d", q.Tax),
		fmt.Sprintf("total: %d", q.Total))
	return q, nil
}

// bundleEligible applies the four structural gates and then the optional CEL
// expression. Expression failures disqualify the bundle and surface as a
// warning rather than failing the quote.
func (c *Calculator) bundleEligible(b catalog.Bundle, tierSlug string, selected []string, subtotal int64, now time.Time) (bool, *diag.Warning) {
	if len(b.ApplicableTiers) > 0 && !containsString(b.ApplicableTiers, tierSlug) {
		return false, nil
	}
	if b.MinItems > len(selected) {
		return false, nil
	}
	if len(b.ApplicableFeatures) > 0 && !intersects(b.ApplicableFeatures, selected) {
		return false, nil
	}
	if !b.ActiveWithin(now) {
		return false, nil
	}
	if b.EligibilityExpr == "" {
		return true, nil
	}

	ok, err := c.evalExpr(b.EligibilityExpr, map[string]any{
		"tier":      tierSlug,
		"features":  selected,
		"itemCount": len(selected),
		"subtotal":  subtotal,
	})
	if err != nil {
		w := diag.Warningf(diag.CodeBundleExprRejected, b.Name, "eligibility expression rejected: %v", err)
		return false, &w
	}
	return ok, nil
}

func (c *Calculator) evalExpr(expr string, input map[string]any) (bool, error) {
	c.mu.RLock()
	prg, hit := c.programs[expr]
	c.mu.RUnlock()

	if !hit {
		c.mu.Lock()
		if prg, hit = c.programs[expr]; !hit {
			ast, issues := c.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				c.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := c.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				c.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			c.programs[expr] = p
			prg = p
		}
		c.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

func couponIneligibleReason(c *catalog.Coupon, subtotal int64, now time.Time) string {
	if !c.IsActive {
		return "inactive"
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return "expired"
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return "max uses reached"
	}
	if c.MinPurchase != nil && subtotal < *c.MinPurchase {
		return "below minimum purchase"
	}
	return ""
}

func discountAmount(typ catalog.DiscountType, value, subtotal int64) int64 {
	if typ == catalog.DiscountPercentage {
		return percentOf(subtotal, value)
	}
	return value
}

func dedupeSorted(slugs []string) []string {
	seen := make(map[string]bool, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}
