package security

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// VerifyDiscordSignature checks a Discord webhook request's
// X-Signature-Timestamp (ts) and X-Signature-Ed25519 (signatureHex)
// headers against the raw body and the application's public key, per
// spec.md §6: Ed25519 over "{ts}{raw}".
func VerifyDiscordSignature(publicKeyHex, ts, signatureHex string, body []byte) error {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("public key has wrong length %d", len(pubKeyBytes))
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("signature has wrong length %d", len(sig))
	}

	message := append([]byte(ts), body...)
	if !ed25519.Verify(ed25519.PublicKey(pubKeyBytes), message, sig) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
