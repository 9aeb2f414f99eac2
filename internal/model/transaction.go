package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction says whether a transaction increases or decreases the balance.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// ParseDirection accepts "credit"/"debit" in any case, plus the
// "cr"/"dr" abbreviations banks print on statements.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "credited", "cr":
		return Credit, nil
	case "debit", "debited", "dr":
		return Debit, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Transaction is a parsed money movement. Amount is always positive;
// Direction carries the sign.
type Transaction struct {
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
}

// Signed returns the amount with the sign the transaction has on a balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s %s", t.Direction, t.Amount.String())
}
