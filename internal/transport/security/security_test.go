package security

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func TestVerifySlackSignatureAccepts(t *testing.T) {
	secret := "shhh"
	body := []byte(`{"type":"event_callback"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + string(body)))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifySlackSignature(secret, ts, sig, body, now); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestVerifySlackSignatureRejectsTamperedBody(t *testing.T) {
	secret := "shhh"
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + `{"a":1}`))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifySlackSignature(secret, ts, sig, []byte(`{"a":2}`), now); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestVerifySlackSignatureRejectsStaleTimestamp(t *testing.T) {
	secret := "shhh"
	now := time.Unix(1_700_000_000, 0)
	stale := now.Add(-10 * time.Minute)
	ts := strconv.FormatInt(stale.Unix(), 10)
	body := []byte(`{}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + string(body)))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifySlackSignature(secret, ts, sig, body, now); err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
}

func TestVerifyDiscordSignatureAccepts(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := "1700000000"
	body := []byte(`{"type":1}`)
	sig := ed25519.Sign(priv, append([]byte(ts), body...))

	err = VerifyDiscordSignature(hex.EncodeToString(pub), ts, hex.EncodeToString(sig), body)
	if err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestVerifyDiscordSignatureRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(ts), []byte(`{"type":1}`)...))

	err = VerifyDiscordSignature(hex.EncodeToString(pub), ts, hex.EncodeToString(sig), []byte(`{"type":2}`))
	if err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}
