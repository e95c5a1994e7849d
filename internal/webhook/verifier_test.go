package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testSecret = "whsec-test"

func signedHeaders(t *testing.T, secret string, ts time.Time, body []byte) http.Header {
	t.Helper()
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", tsStr)
	mac.Write(body)
	h := http.Header{}
	h.Set(HeaderTimestamp, tsStr)
	h.Set(HeaderSignature, "v0="+hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestVerifyAcceptsValidDelivery(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	body := []byte(`{"event":"meeting.updated","payload":{"object":{"id":8123}}}`)

	if err := v.Verify(signedHeaders(t, testSecret, now, body), body); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	body := []byte(`{"event":"meeting.updated"}`)

	// 301s old is just past the allowed window.
	h := signedHeaders(t, testSecret, now.Add(-301*time.Second), body)
	err := v.Verify(h, body)
	if _, ok := err.(*VerificationError); !ok {
		t.Fatalf("err = %v, want *VerificationError", err)
	}

	// 299s old is still inside it.
	h = signedHeaders(t, testSecret, now.Add(-299*time.Second), body)
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("299s-old delivery rejected: %v", err)
	}
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	body := []byte(`{}`)

	h := signedHeaders(t, testSecret, now.Add(301*time.Second), body)
	if err := v.Verify(h, body); err == nil {
		t.Fatal("future-dated delivery accepted")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	body := []byte(`{"event":"user.deleted","payload":{"object":{"id":"u1"}}}`)
	h := signedHeaders(t, testSecret, now, body)

	// Flip one byte after signing.
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] ^= 0x01
	if err := v.Verify(h, tampered); err == nil {
		t.Fatal("tampered body accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	v := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	body := []byte(`{}`)
	h := signedHeaders(t, "other-secret", now, body)
	if err := v.Verify(h, body); err == nil {
		t.Fatal("wrong-secret signature accepted")
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	v := NewVerifier(testSecret)
	cases := []http.Header{
		{},
		{http.CanonicalHeaderKey(HeaderSignature): []string{"v0=abc"}},
		{http.CanonicalHeaderKey(HeaderTimestamp): []string{"123"}},
	}
	for i, h := range cases {
		if err := v.Verify(h, []byte(`{}`)); err == nil {
			t.Errorf("case %d: accepted without full headers", i)
		}
	}
}

func TestChallengeResponse(t *testing.T) {
	v := NewVerifier(testSecret)
	resp := v.ChallengeResponse("plain-123")
	if resp["plainToken"] != "plain-123" {
		t.Errorf("plainToken = %q", resp["plainToken"])
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("plain-123"))
	if want := hex.EncodeToString(mac.Sum(nil)); resp["encryptedToken"] != want {
		t.Errorf("encryptedToken = %q, want %q", resp["encryptedToken"], want)
	}
}
