// Package ledger folds transactions into a running balance.
//
// A Ledger starts uninitialized. Transactions applied before SetInitial are
// dropped. Every mutation is serialized; reads never block. After each
// mutation the registered persisters and notifiers are called in the
// background and their failures are logged, never returned.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/model"
)

// Persister stores the latest balance.
type Persister interface {
	Persist(ctx context.Context, b Balance) error
}

// Notifier is told that the balance changed, e.g. to refresh a display.
type Notifier interface {
	NotifyChanged(ctx context.Context) error
}

// DefaultDispatchTimeout bounds a single persister or notifier call.
const DefaultDispatchTimeout = 5 * time.Second

// Ledger owns the balance.
type Ledger struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Balance]
	seq     uint64 // guarded by mu

	persisters []*persisterSlot
	notifiers  []Notifier
	logger     *zap.Logger
	timeout    time.Duration
	inflight   sync.WaitGroup
}

type persisterSlot struct {
	mu   sync.Mutex
	last uint64
	p    Persister
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPersister registers a persister.
func WithPersister(p Persister) Option {
	return func(l *Ledger) {
		l.persisters = append(l.persisters, &persisterSlot{p: p})
	}
}

// WithNotifier registers a change notifier.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		l.notifiers = append(l.notifiers, n)
	}
}

// WithLogger sets the logger used for dropped transactions and sink failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDispatchTimeout bounds each sink call. Non-positive values are ignored.
func WithDispatchTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New returns a Ledger holding initial, typically the balance loaded from a
// store at start-up. Loading does not notify sinks.
func New(initial Balance, opts ...Option) *Ledger {
	l := &Ledger{
		logger:  zap.NewNop(),
		timeout: DefaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.current.Store(&initial)
	return l
}

// Current returns the latest committed balance.
func (l *Ledger) Current() Balance {
	return *l.current.Load()
}

// SetInitial overwrites the balance with amount. Negative amounts are valid.
func (l *Ledger) SetInitial(amount decimal.Decimal) Balance {
	l.mu.Lock()
	b := Some(amount)
	seq := l.commit(b)
	l.mu.Unlock()

	l.logger.Info("balance set", zap.String("balance", amount.String()))
	l.dispatch(seq, b)
	return b
}

// Apply folds txn into the balance. It reports false, and changes nothing,
// when the balance has not been initialized.
func (l *Ledger) Apply(txn model.Transaction) (Balance, bool) {
	l.mu.Lock()
	cur := *l.current.Load()
	if !cur.Valid {
		l.mu.Unlock()
		l.logger.Debug("transaction dropped, balance not initialized",
			zap.String("direction", string(txn.Direction)),
			zap.String("amount", txn.Amount.String()))
		return cur, false
	}
	b := Some(cur.Amount.Add(txn.Signed()))
	seq := l.commit(b)
	l.mu.Unlock()

	l.logger.Debug("transaction applied",
		zap.String("direction", string(txn.Direction)),
		zap.String("amount", txn.Amount.String()),
		zap.String("balance", b.Amount.String()))
	l.dispatch(seq, b)
	return b, true
}

// Reset returns the ledger to the uninitialized state. Only the owning
// process should call it.
func (l *Ledger) Reset() {
	l.mu.Lock()
	seq := l.commit(Balance{})
	l.mu.Unlock()

	l.logger.Info("balance reset")
	l.dispatch(seq, Balance{})
}

// Wait blocks until all background sink calls started so far have returned.
func (l *Ledger) Wait() {
	l.inflight.Wait()
}

// commit must be called with mu held.
func (l *Ledger) commit(b Balance) uint64 {
	l.seq++
	l.current.Store(&b)
	return l.seq
}

func (l *Ledger) dispatch(seq uint64, b Balance) {
	for _, slot := range l.persisters {
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.guard("persist", func(ctx context.Context) error {
				return slot.persist(ctx, seq, b)
			})
		}()
	}
	for _, n := range l.notifiers {
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.guard("notify", n.NotifyChanged)
		}()
	}
}

// guard runs fn with a timeout and swallows both errors and panics.
func (l *Ledger) guard(op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("balance sink panicked", zap.String("op", op), zap.Any("panic", r))
		}
	}()
	if err := fn(ctx); err != nil {
		l.logger.Warn("balance sink failed", zap.String("op", op), zap.Error(err))
	}
}

// persist skips values older than the last one this persister stored, so
// out-of-order goroutines cannot regress the persisted balance.
func (s *persisterSlot) persist(ctx context.Context, seq uint64, b Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.last {
		return nil
	}
	if err := s.p.Persist(ctx, b); err != nil {
		return err
	}
	s.last = seq
	return nil
}
