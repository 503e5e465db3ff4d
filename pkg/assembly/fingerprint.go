package assembly

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/prroha/fullstack-starter-sub010/pkg/catalog"
	"github.com/prroha/fullstack-starter-sub010/pkg/order"
)

// fingerprint hashes everything the catalog contributes to archive content:
// order identity, project name, and the resolved feature records with their
// mappings. Equal fingerprints plus an unchanged filesystem tree mean
// byte-identical archives. The hash runs over the RFC 8785 canonical form
// so key order in intermediate JSON can never leak in.
func fingerprint(o order.Details, projectName string, features []catalog.Feature) (string, error) {
	doc := map[string]any{
		"orderNumber": o.OrderNumber,
		"projectName": projectName,
		"tier":        o.Tier,
		"template":    o.Template,
		"createdAt":   o.CreatedAt.UTC().Format(time.RFC3339),
		"features":    features,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("assembly: fingerprint marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("assembly: fingerprint canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
