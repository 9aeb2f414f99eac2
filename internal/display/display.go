// Package display renders balances for people.
package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Rhymond/go-money"

	"github.com/smsledger/smsledger/internal/ledger"
)

// NotSet is shown for an uninitialized balance.
const NotSet = "not set"

// Currency returns the go-money currency for an ISO 4217 code.
func Currency(code string) (*money.Currency, error) {
	cur := money.GetCurrency(strings.ToUpper(code))
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return cur, nil
}

// Format renders b in the given currency, rounding to its minor unit.
// Unknown currencies fall back to the plain decimal.
func Format(b ledger.Balance, code string) string {
	amount, ok := b.Get()
	if !ok {
		return NotSet
	}
	cur, err := Currency(code)
	if err != nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// BalanceSource is anything holding a current balance, normally a *ledger.Ledger.
type BalanceSource interface {
	Current() ledger.Balance
}

// Notifier writes the formatted balance to w whenever the ledger changes.
type Notifier struct {
	mu       sync.Mutex
	w        io.Writer
	currency string
	src      BalanceSource
}

// NewNotifier returns a Notifier. It stays silent until attached to a source.
func NewNotifier(w io.Writer, currency string) *Notifier {
	return &Notifier{w: w, currency: currency}
}

// Attach sets the balance source. The ledger takes its notifiers at
// construction, so the two are wired in two steps.
func (n *Notifier) Attach(src BalanceSource) {
	n.mu.Lock()
	n.src = src
	n.mu.Unlock()
}

// NotifyChanged implements ledger.Notifier.
func (n *Notifier) NotifyChanged(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.src == nil {
		return nil
	}
	if _, err := fmt.Fprintf(n.w, "Balance: %s\n", Format(n.src.Current(), n.currency)); err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}
	return nil
}
