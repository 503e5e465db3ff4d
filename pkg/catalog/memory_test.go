package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReader(t *testing.T) {
	r := NewMemoryReader()
	ctx := context.Background()

	r.AddFeature(Feature{Slug: "payments", Name: "Payments", Module: "billing", Requires: []string{"auth"}})
	r.AddFeature(Feature{Slug: "auth", Name: "Authentication", Module: "auth"})
	r.AddTier(Tier{Slug: "starter", Name: "Starter", Price: 9900})
	r.AddCoupon(Coupon{Code: "LAUNCH20", Type: DiscountPercentage, Value: 20, IsActive: true})
	r.AddBundle(Bundle{ID: 2, Name: "b", IsActive: true})
	r.AddBundle(Bundle{ID: 1, Name: "a", IsActive: true})
	r.AddBundle(Bundle{ID: 3, Name: "off", IsActive: false})

	features, err := r.Features(ctx, []string{"payments", "auth", "unknown"})
	require.NoError(t, err)
	require.Len(t, features, 2, "unknown slugs are omitted")
	assert.Equal(t, "auth", features[0].Slug, "results sorted by slug")

	_, err = r.Tier(ctx, "enterprise")
	assert.ErrorIs(t, err, ErrTierNotFound)

	tmpl, err := r.Template(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, tmpl)

	bundles, err := r.ActiveBundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 2, "inactive bundles filtered")
	assert.Equal(t, int64(1), bundles[0].ID, "ascending ID order")

	c, err := r.CouponByCode(ctx, "launch20")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, DiscountPercentage, c.Type)
}
