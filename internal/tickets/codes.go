package tickets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// shortCodeCharset skips 0/O/1/I/L so gate staff can read codes aloud.
const shortCodeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	shortCodeLength = 8
	qrTokenBytes    = 24
)

func newShortCode() (string, error) {
	buf := make([]byte, shortCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate short code: %w", err)
	}
	out := make([]byte, shortCodeLength)
	for i, b := range buf {
		out[i] = shortCodeCharset[int(b)%len(shortCodeCharset)]
	}
	return string(out), nil
}

func newQRToken() (string, error) {
	buf := make([]byte, qrTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate qr token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// newLotNo stamps every ticket minted in one batch with a shared lot so a
// bad print run can be traced and voided together.
func newLotNo(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lot no: %w", err)
	}
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = shortCodeCharset[int(b)%len(shortCodeCharset)]
	}
	return fmt.Sprintf("L%s-%s", now.UTC().Format("20060102"), suffix), nil
}
