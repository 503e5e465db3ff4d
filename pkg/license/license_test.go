package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
)

var capturedAt = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

func testOrder() order.Details {
	return order.Details{
		OrderNumber:      "ORD-2026-000123",
		Tier:             "professional",
		SelectedFeatures: []string{"payments"},
		Template:         "saas",
		CustomerEmail:    "jane@example.com",
		CustomerName:     "Jane Doe",
		CreatedAt:        capturedAt,
		License: order.License{
			Key:    "FSK-TEST-TEST-TEST-TEST",
			Status: order.LicenseActive,
		},
	}
}

func testFeatures() []catalog.Feature {
	return []catalog.Feature{
		{Slug: "auth", Name: "Authentication", Module: "auth", Description: "JWT auth with refresh tokens"},
		{Slug: "users", Name: "Users", Module: "auth"},
		{Slug: "payments", Name: "Payments", Module: "billing", Description: "Stripe checkout"},
	}
}

func TestNewKey(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	parts := strings.Split(key, "-")
	require.Len(t, parts, 5)
	assert.Equal(t, "FSK", parts[0])
	for _, p := range parts[1:] {
		assert.Len(t, p, 4)
		for _, c := range p {
			assert.Contains(t, crockford, string(c))
		}
	}

	other, err := NewKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestRenderLicense(t *testing.T) {
	text := RenderLicense(testOrder(), capturedAt)

	assert.Contains(t, text, "License Key: FSK-TEST-TEST-TEST-TEST")
	assert.Contains(t, text, "Order: ORD-2026-000123")
	assert.Contains(t, text, "Licensed To: Jane Doe <jane@example.com>")
	assert.Contains(t, text, "Tier: Professional")
	assert.Contains(t, text, "Issued: 2026-03-15")
	assert.Contains(t, text, "## Warranty Disclaimer")

	assert.Equal(t, text, RenderLicense(testOrder(), capturedAt), "rendering is deterministic")
}

func TestRenderLicense_EmailOnlyLicensee(t *testing.T) {
	o := testOrder()
	o.CustomerName = ""
	text := RenderLicense(o, capturedAt)
	assert.Contains(t, text, "Licensed To: jane@example.com\n")
}

func TestRenderReadme(t *testing.T) {
	text := RenderReadme(testOrder(), "SaaS Starter", testFeatures(), capturedAt)

	assert.True(t, strings.HasPrefix(text, "# SaaS Starter (Professional)\n"))
	assert.Contains(t, text, "Generated at 2026-03-15T09:30:00Z for order ORD-2026-000123.")
	assert.Contains(t, text, "### Auth\n\n- Authentication: JWT auth with refresh tokens\n- Users\n")
	assert.Contains(t, text, "### Billing\n\n- Payments: Stripe checkout\n")
	assert.Less(t, strings.Index(text, "### Auth"), strings.Index(text, "### Billing"),
		"groups appear in resolution order")
	assert.Contains(t, text, "## Getting Started")
}

func TestRenderReadme_FallbackTemplateName(t *testing.T) {
	o := testOrder()
	o.Template = ""
	text := RenderReadme(o, "", nil, capturedAt)
	assert.True(t, strings.HasPrefix(text, "# Starter (Professional)\n"))

	o.Template = "saas-kit"
	text = RenderReadme(o, "", nil, capturedAt)
	assert.True(t, strings.HasPrefix(text, "# Saas Kit (Professional)\n"))
}

func TestRenderConfig(t *testing.T) {
	data, err := RenderConfig(testOrder(), testFeatures(), capturedAt)
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasSuffix(text, "\n"))

	assert.Contains(t, text, `"tier": "professional"`)
	assert.Contains(t, text, `"template": "saas"`)
	assert.Contains(t, text, `"orderNumber": "ORD-2026-000123"`)
	assert.Contains(t, text, `"generatedAt": "2026-03-15T09:30:00Z"`)

	idxFeatures := strings.Index(text, `"features"`)
	idxTier := strings.Index(text, `"tier"`)
	assert.Less(t, idxFeatures, idxTier, "keys sorted")

	assert.Less(t, strings.Index(text, `"auth"`), strings.Index(text, `"payments"`),
		"features in resolution order")

	again, err := RenderConfig(testOrder(), testFeatures(), capturedAt)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRenderConfig_NullTemplate(t *testing.T) {
	o := testOrder()
	o.Template = ""
	data, err := RenderConfig(o, nil, capturedAt)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"template": null`)
}

func TestDownloadTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := MintDownloadToken(secret, "ORD-2026-000123", "FSK-TEST", 72*time.Hour, time.Now().UTC())
	require.NoError(t, err)

	claims, err := VerifyDownloadToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-000123", claims.OrderNumber)
	assert.Equal(t, "FSK-TEST", claims.LicenseKey)
	assert.Equal(t, "ORD-2026-000123", claims.Subject)
}

func TestVerifyDownloadToken_WrongSecret(t *testing.T) {
	token, err := MintDownloadToken([]byte("right"), "ORD-1", "FSK-X", time.Hour, capturedAt)
	require.NoError(t, err)

	_, err = VerifyDownloadToken([]byte("wrong"), token)
	assert.Error(t, err)
}

func TestVerifyDownloadToken_Expired(t *testing.T) {
	issued := time.Now().UTC().Add(-2 * time.Hour)
	token, err := MintDownloadToken([]byte("s"), "ORD-1", "FSK-X", time.Hour, issued)
	require.NoError(t, err)

	_, err = VerifyDownloadToken([]byte("s"), token)
	assert.Error(t, err)
}

func TestMintDownloadToken_EmptySecret(t *testing.T) {
	_, err := MintDownloadToken(nil, "ORD-1", "FSK-X", time.Hour, capturedAt)
	assert.Error(t, err)
}
