package enums

import "fmt"

// ShiftStatus maps to the shift_status enum in Postgres.
type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

// IsValid reports whether the value matches the canonical shift_status enum.
func (s ShiftStatus) IsValid() bool {
	return s == ShiftStatusOpen || s == ShiftStatusClosed
}

// SaleKind distinguishes the entries posted into a shift's totals.
type SaleKind string

const (
	SaleKindSale   SaleKind = "sale"
	SaleKindRefund SaleKind = "refund"
)

// IsValid reports whether the value matches the canonical sale_kind enum.
func (k SaleKind) IsValid() bool {
	return k == SaleKindSale || k == SaleKindRefund
}

// ParseSaleKind converts raw input into SaleKind.
func ParseSaleKind(value string) (SaleKind, error) {
	kind := SaleKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid sale kind %q", value)
	}
	return kind, nil
}
