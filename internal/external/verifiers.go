// Package external holds the integrations with billing providers: webhook
// signature verification for Stripe, Paddle and the App Store. Parsing of
// the verified payloads lives in the billing package; this package only
// answers "did this really come from the provider".
package external

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	stripe "github.com/stripe/stripe-go/v82"
)

// WebhookVerifier abstracts billing webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success, an error on
	// failure.
	Verify(payload []byte, header string, secret string) error
}

// NotificationVerifier validates an App Store server notification's signed
// payload and returns the decoded claims JSON. App Store notifications are
// JWS envelopes rather than body-plus-signature-header, hence the separate
// contract.
type NotificationVerifier interface {
	VerifyAndDecode(signedPayload string) ([]byte, error)
}

// ---------------------------------------------------------------------------
// Stripe
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification. This provides HMAC-SHA256 signature checking
// with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// ---------------------------------------------------------------------------
// Paddle
// ---------------------------------------------------------------------------

// PaddleVerifier implements WebhookVerifier using the Paddle SDK's webhook
// verifier. The SDK verifies against an *http.Request, so the payload and
// signature header are wrapped back into one.
type PaddleVerifier struct{}

// Verify validates a Paddle notification payload against the
// Paddle-Signature header and the notification destination's secret key.
func (v *PaddleVerifier) Verify(payload []byte, header string, secret string) error {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", header)

	ok, err := paddle.NewWebhookVerifier(secret).Verify(req)
	if err != nil {
		return fmt.Errorf("verifying paddle signature: %w", err)
	}
	if !ok {
		return errors.New("paddle signature mismatch")
	}
	return nil
}

// ---------------------------------------------------------------------------
// App Store
// ---------------------------------------------------------------------------

// AppStoreVerifier implements NotificationVerifier for App Store server
// notification JWS envelopes (ES256). The certificate chain embedded in the
// x5c header is validated against the configured root pool, then the
// signature is checked against the leaf certificate's key.
type AppStoreVerifier struct {
	roots *x509.CertPool
}

// NewAppStoreVerifier creates an AppStoreVerifier trusting the given roots.
func NewAppStoreVerifier(roots *x509.CertPool) *AppStoreVerifier {
	return &AppStoreVerifier{roots: roots}
}

// jwsHeader is the protected header of an App Store signed payload.
type jwsHeader struct {
	Alg string   `json:"alg"`
	X5c []string `json:"x5c"`
}

// VerifyAndDecode validates the JWS envelope and returns the decoded
// claims JSON.
func (v *AppStoreVerifier) VerifyAndDecode(signedPayload string) ([]byte, error) {
	parts := strings.Split(signedPayload, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed signed payload")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	var header jwsHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Alg != "ES256" {
		return nil, fmt.Errorf("unsupported algorithm %q", header.Alg)
	}
	if len(header.X5c) == 0 {
		return nil, errors.New("missing certificate chain")
	}

	leaf, err := v.verifyChain(header.X5c)
	if err != nil {
		return nil, err
	}

	key, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("leaf key is not ECDSA (got %T)", leaf.PublicKey)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	// ES256 signatures are the raw 64-byte R||S concatenation.
	if len(sig) != 64 {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if !ecdsa.Verify(key, digest[:], r, s) {
		return nil, errors.New("signature mismatch")
	}

	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}
	return claims, nil
}

// decodeClaimsUnverified extracts the claims segment of a JWS without
// signature checking. Only the stub verifier uses it.
func decodeClaimsUnverified(signedPayload string) ([]byte, error) {
	parts := strings.Split(signedPayload, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed signed payload")
	}
	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}
	return claims, nil
}

// verifyChain parses the base64 DER certificates from the x5c header and
// validates the leaf against the trusted roots, returning the leaf.
func (v *AppStoreVerifier) verifyChain(x5c []string) (*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(x5c))
	for i, encoded := range x5c {
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding certificate %d: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	opts := x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
	}
	if _, err := certs[0].Verify(opts); err != nil {
		return nil, fmt.Errorf("verifying certificate chain: %w", err)
	}
	return certs[0], nil
}
