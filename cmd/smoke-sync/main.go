package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Smoke test against a running chronosync-api instance: health check,
// signed url_validation handshake, and (if a cron secret is set) a
// retention prune via the trigger endpoint.
func main() {
	base := os.Getenv("CHRONO_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	secret := os.Getenv("CHRONO_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("missing CHRONO_WEBHOOK_SECRET")
	}

	hc := &http.Client{Timeout: 5 * time.Second}

	resp, err := hc.Get(base + "/healthz")
	if err != nil {
		log.Fatalf("healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("healthz: status %d", resp.StatusCode)
	}

	plain := make([]byte, 16)
	if _, err := rand.Read(plain); err != nil {
		log.Fatalf("rand: %v", err)
	}
	plainToken := hex.EncodeToString(plain)
	body, _ := json.Marshal(map[string]any{
		"event": "endpoint.url_validation",
		"payload": map[string]string{
			"plainToken": plainToken,
		},
	})

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-zm-request-timestamp", ts)
	req.Header.Set("x-zm-signature", sig)

	resp, err = hc.Do(req)
	if err != nil {
		log.Fatalf("webhook: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("webhook: status %d: %s", resp.StatusCode, raw)
	}

	var challenge struct {
		PlainToken     string `json:"plainToken"`
		EncryptedToken string `json:"encryptedToken"`
	}
	if err := json.Unmarshal(raw, &challenge); err != nil {
		log.Fatalf("decode challenge: %v", err)
	}
	want := hmac.New(sha256.New, []byte(secret))
	want.Write([]byte(plainToken))
	if challenge.EncryptedToken != hex.EncodeToString(want.Sum(nil)) {
		log.Fatalf("challenge mismatch: got %q", challenge.EncryptedToken)
	}

	if cron := os.Getenv("CHRONO_CRON_SECRET"); cron != "" {
		trigger, _ := json.Marshal(map[string]string{"action": "prune-events"})
		req, _ := http.NewRequest(http.MethodPost, base+"/v1/trigger", bytes.NewReader(trigger))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Cron-Secret", cron)
		resp, err := hc.Do(req)
		if err != nil {
			log.Fatalf("trigger: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("trigger: status %d", resp.StatusCode)
		}
	}

	fmt.Println("SMOKE OK: health, signed handshake, prune verified")
}
