// Package qr encodes the ticket payload printed into a QR code. The payload
// is compact JSON wrapped in base64url so it survives every scanner and can
// be validated offline without a lookup.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

// Payload is the wire form embedded in a QR code. Field names stay short to
// keep the printed code scannable on low-end receipt printers.
type Payload struct {
	TicketID   uuid.UUID        `json:"tid"`
	QRToken    string           `json:"qt"`
	ShortCode  string           `json:"sc"`
	Type       enums.TicketType `json:"ty"`
	ValidFrom  int64            `json:"vf"`
	ValidTo    int64            `json:"vt"`
	KeyVersion string           `json:"kv"`
	Signature  string           `json:"sig"`
}

// ValidFromTime returns the validity start as a time.
func (p Payload) ValidFromTime() time.Time {
	return time.Unix(p.ValidFrom, 0).UTC()
}

// ValidToTime returns the validity end as a time.
func (p Payload) ValidToTime() time.Time {
	return time.Unix(p.ValidTo, 0).UTC()
}

// Encode serializes the payload to its scannable string form.
func Encode(payload Payload) (string, error) {
	if payload.TicketID == uuid.Nil {
		return "", fmt.Errorf("ticket id is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a scanned string back into a payload. A scan that fails here
// is treated downstream the same as an unknown ticket.
func Decode(encoded string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, fmt.Errorf("decode qr payload: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, fmt.Errorf("unmarshal qr payload: %w", err)
	}
	if payload.TicketID == uuid.Nil {
		return Payload{}, fmt.Errorf("qr payload missing ticket id")
	}
	return payload, nil
}
