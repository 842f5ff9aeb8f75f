package qr

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playpasshq/playpass-backend/pkg/enums"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Payload{
		TicketID:   uuid.New(),
		QRToken:    "qrtok-1",
		ShortCode:  "AB12CD",
		Type:       enums.TicketTypeMulti,
		ValidFrom:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Unix(),
		ValidTo:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Unix(),
		KeyVersion: "v2",
		Signature:  "sig",
	}
	encoded, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
	if !out.ValidFromTime().Equal(time.Unix(in.ValidFrom, 0)) {
		t.Fatal("ValidFromTime mismatch")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not base64url!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := Decode("eyJmb28iOiJiYXIifQ"); err == nil {
		t.Fatal("expected error for payload without ticket id")
	}
}

func TestEncodeRequiresTicketID(t *testing.T) {
	if _, err := Encode(Payload{QRToken: "x"}); err == nil {
		t.Fatal("expected error for missing ticket id")
	}
}
