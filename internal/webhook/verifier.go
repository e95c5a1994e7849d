// Package webhook verifies and decodes provider webhook deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// Header names used by the provider's webhook deliveries.
	HeaderSignature = "x-zm-signature"
	HeaderTimestamp = "x-zm-request-timestamp"

	// MaxSkew bounds how old (or future-dated) a delivery may be.
	MaxSkew = 300 * time.Second

	signaturePrefix = "v0="
)

// VerificationError explains a rejected delivery. Callers map it to 401
// without echoing the reason to the sender.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "webhook: verification failed: " + e.Reason
}

// Verifier checks delivery signatures against the shared webhook secret.
type Verifier struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier builds a Verifier for the given shared secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: []byte(secret), skew: MaxSkew, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the signature and timestamp headers against the raw
// request body. The signed message is "v0:<timestamp>:<body>" and the header
// carries "v0=" plus the lowercase hex HMAC-SHA256 digest. Comparison is
// constant-time; any mismatch, absent header, or delivery older than the
// allowed skew is rejected.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	sig := h.Get(HeaderSignature)
	ts := h.Get(HeaderTimestamp)
	if sig == "" || ts == "" {
		return &VerificationError{Reason: "missing signature headers"}
	}

	sent, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return &VerificationError{Reason: "malformed timestamp"}
	}
	age := v.now().Sub(time.Unix(sent, 0))
	if age > v.skew || age < -v.skew {
		return &VerificationError{Reason: "timestamp outside allowed window"}
	}

	if !hmac.Equal([]byte(sig), []byte(v.sign(ts, body))) {
		return &VerificationError{Reason: "signature mismatch"}
	}
	return nil
}

func (v *Verifier) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// ChallengeResponse answers the provider's endpoint validation handshake:
// the plain token echoed alongside its HMAC-SHA256 hex digest under the
// webhook secret.
func (v *Verifier) ChallengeResponse(plainToken string) map[string]string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(plainToken))
	return map[string]string{
		"plainToken":     plainToken,
		"encryptedToken": hex.EncodeToString(mac.Sum(nil)),
	}
}
