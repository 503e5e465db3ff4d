package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryReader is an in-memory Reader for tests and offline tooling.
type MemoryReader struct {
	mu        sync.RWMutex
	features  map[string]Feature
	tiers     map[string]Tier
	templates map[string]Template
	bundles   []Bundle
	coupons   map[string]Coupon
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		features:  make(map[string]Feature),
		tiers:     make(map[string]Tier),
		templates: make(map[string]Template),
		coupons:   make(map[string]Coupon),
	}
}

// AddFeature registers or replaces a feature record.
func (r *MemoryReader) AddFeature(f Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[f.Slug] = f
}

// AddTier registers or replaces a tier record.
func (r *MemoryReader) AddTier(t Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[t.Slug] = t
}

// AddTemplate registers or replaces a template record.
func (r *MemoryReader) AddTemplate(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Slug] = t
}

// AddBundle appends a bundle discount.
func (r *MemoryReader) AddBundle(b Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, b)
}

// AddCoupon registers or replaces a coupon, keyed by uppercased code.
func (r *MemoryReader) AddCoupon(c Coupon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[strings.ToUpper(c.Code)] = c
}

func (r *MemoryReader) Features(ctx context.Context, slugs []string) ([]Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Feature
	for _, slug := range slugs {
		if f, ok := r.features[slug]; ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *MemoryReader) Tier(ctx context.Context, slug string) (*Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tiers[slug]
	if !ok {
		return nil, ErrTierNotFound
	}
	return &t, nil
}

func (r *MemoryReader) Template(ctx context.Context, slug string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[slug]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryReader) ActiveBundles(ctx context.Context) ([]Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Bundle
	for _, b := range r.bundles {
		if b.IsActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryReader) CouponByCode(ctx context.Context, code string) (*Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
