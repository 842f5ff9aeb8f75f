package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketClaims is the canonical set of fields covered by a ticket signature.
// Validity bounds are signed as unix seconds so a tampered window fails
// verification along with the identifiers.
type TicketClaims struct {
	TicketID  uuid.UUID
	QRToken   string
	ValidFrom time.Time
	ValidTo   time.Time
}

// Signer produces and checks versioned HMAC-SHA256 ticket signatures.
type Signer struct {
	keyring *Keyring
}

// NewSigner wraps a keyring.
func NewSigner(keyring *Keyring) *Signer {
	return &Signer{keyring: keyring}
}

// Sign returns the signature and key version for the claims using the
// active key.
func (s *Signer) Sign(claims TicketClaims) (signature, keyVersion string, err error) {
	keyVersion = s.keyring.ActiveVersion()
	signature, err = s.signWith(claims, keyVersion)
	return signature, keyVersion, err
}

// Verify checks a signature against the claims under the named key version.
// It returns false both for tampered payloads and for key versions the
// keyring does not know.
func (s *Signer) Verify(claims TicketClaims, keyVersion, signature string) bool {
	expected, err := s.signWith(claims, keyVersion)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Signer) signWith(claims TicketClaims, keyVersion string) (string, error) {
	key, err := s.keyring.Key(keyVersion)
	if err != nil {
		return "", err
	}
	if claims.TicketID == uuid.Nil {
		return "", fmt.Errorf("ticket id is required")
	}
	if claims.QRToken == "" {
		return "", fmt.Errorf("qr token is required")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonicalPayload(claims, keyVersion)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// canonicalPayload fixes the byte layout a signature covers. Changing this
// format invalidates every outstanding ticket, so new fields need a new key
// version instead.
func canonicalPayload(claims TicketClaims, keyVersion string) string {
	return strings.Join([]string{
		claims.TicketID.String(),
		claims.QRToken,
		strconv.FormatInt(claims.ValidFrom.Unix(), 10),
		strconv.FormatInt(claims.ValidTo.Unix(), 10),
		keyVersion,
	}, "|")
}
