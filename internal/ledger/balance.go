package ledger

import "github.com/shopspring/decimal"

// Balance is an optional amount. The zero value is "not yet initialized".
type Balance struct {
	Amount decimal.Decimal
	Valid  bool
}

// Some returns a set balance.
func Some(amount decimal.Decimal) Balance {
	return Balance{Amount: amount, Valid: true}
}

// Get returns the amount and whether the balance is set.
func (b Balance) Get() (decimal.Decimal, bool) {
	return b.Amount, b.Valid
}

// Equal compares two balances, treating all unset balances as equal.
func (b Balance) Equal(other Balance) bool {
	if b.Valid != other.Valid {
		return false
	}
	return !b.Valid || b.Amount.Equal(other.Amount)
}

func (b Balance) String() string {
	if !b.Valid {
		return "unset"
	}
	return b.Amount.String()
}
