// Package security implements the webhook signature verification named in
// spec.md §6's security-sensitive boundaries: Slack's HMAC-SHA256 scheme
// and Discord's Ed25519 scheme. Both are plain, unit-testable functions —
// the webhook HTTP servers that would call them are out of scope.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

const slackTimestampTolerance = 5 * time.Minute

// VerifySlackSignature checks a Slack webhook request's
// X-Slack-Request-Timestamp (ts) and X-Slack-Signature (signature,
// "v0=<hex>") headers against the raw request body and the app's signing
// secret, per spec.md §6: HMAC-SHA256 over "v0:{ts}:{raw}", constant-time
// compared, with a five-minute timestamp tolerance to reject replays.
func VerifySlackSignature(signingSecret, ts, signature string, body []byte, now time.Time) error {
	tsSeconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	age := now.Sub(time.Unix(tsSeconds, 0))
	if math.Abs(age.Seconds()) > slackTimestampTolerance.Seconds() {
		return fmt.Errorf("timestamp %s outside %s tolerance", ts, slackTimestampTolerance)
	}

	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(base))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
