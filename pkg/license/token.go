package license

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "starter-studio/license"

// DownloadClaims is the payload of a download token. The token gates archive
// downloads; the stored order still enforces maxDownloads and status.
type DownloadClaims struct {
	jwt.RegisteredClaims
	OrderNumber string `json:"orderNumber"`
	LicenseKey  string `json:"licenseKey"`
}

// MintDownloadToken signs an HS256 download token for one order.
func MintDownloadToken(secret []byte, orderNumber, licenseKey string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("license: empty signing secret")
	}
	now = now.UTC()
	claims := DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   orderNumber,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrderNumber: orderNumber,
		LicenseKey:  licenseKey,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("license: sign download token: %w", err)
	}
	return signed, nil
}

// VerifyDownloadToken parses and validates a download token. Expiry and
// signature failures surface as errors from the JWT layer.
func VerifyDownloadToken(secret []byte, tokenString string) (*DownloadClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DownloadClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("license: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*DownloadClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
