// Package order holds the order value types shared by pricing, assembly,
// and the emitters. Orders are created by the checkout flow (out of process)
// and handed to the engine as immutable snapshots.
package order

import "time"

// Totals is the priced summary persisted on an order at checkout time.
// All amounts are integer minor units.
type Totals struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// LicenseStatus tracks the lifecycle of an issued license.
type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseRevoked LicenseStatus = "revoked"
	LicenseExpired LicenseStatus = "expired"
)

// License is the license block persisted on an order. Key and DownloadToken
// are minted at checkout (see pkg/license); the engine only embeds them.
type License struct {
	Key           string        `json:"key"`
	DownloadToken string        `json:"downloadToken"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	MaxDownloads  int           `json:"maxDownloads"`
	DownloadCount int           `json:"downloadCount"`
	Status        LicenseStatus `json:"status"`
}

// Details is the order snapshot the assembly engine consumes. CreatedAt is
// the order creation timestamp; it doubles as the fixed modification time of
// every archive entry and as the generation timestamp embedded in the
// rendered documents, which keeps repeated generations byte-identical.
type Details struct {
	OrderNumber      string    `json:"orderNumber"`
	Tier             string    `json:"tier"`
	SelectedFeatures []string  `json:"selectedFeatures"`
	Template         string    `json:"template,omitempty"`
	CustomerEmail    string    `json:"customerEmail"`
	CustomerName     string    `json:"customerName,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	Totals           Totals    `json:"totals"`
	License          License   `json:"license"`
}

// ProjectName returns the top-level directory of the emitted archive,
// "<template or 'starter'>-<tier>".
func (d Details) ProjectName() string {
	base := d.Template
	if base == "" {
		base = "starter"
	}
	return base + "-" + d.Tier
}
