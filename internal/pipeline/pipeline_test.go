package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsledger/smsledger/internal/activity"
	"github.com/smsledger/smsledger/internal/extractor"
	"github.com/smsledger/smsledger/internal/ledger"
	"github.com/smsledger/smsledger/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(initial string) *ledger.Ledger {
	if initial == "" {
		return ledger.New(ledger.Balance{})
	}
	return ledger.New(ledger.Some(dec(initial)))
}

type memRecorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *memRecorder) Record(e activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type sliceSource []model.Message

func (s sliceSource) Consume(ctx context.Context, handle func(context.Context, model.Message) error) error {
	for _, m := range s {
		if err := handle(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type sourceFunc func(ctx context.Context, handle func(context.Context, model.Message) error) error

func (f sourceFunc) Consume(ctx context.Context, handle func(context.Context, model.Message) error) error {
	return f(ctx, handle)
}

type failingSource struct{ err error }

func (s failingSource) Consume(context.Context, func(context.Context, model.Message) error) error {
	return s.err
}

func TestProcess_Outcomes(t *testing.T) {
	l := newLedger("5000")
	rec := &memRecorder{}
	p := New(extractor.New(), l, WithPrefilter(true), WithRecorder(rec))

	r := p.Process(model.Message{Sender: "SBI", Body: "Your a/c is debited by Rs.1,000 on 05Jan"})
	assert.Equal(t, Applied, r.Outcome)
	assert.True(t, r.Balance.Amount.Equal(dec("4000")))
	assert.Equal(t, "sbi", r.Match.Rule)

	r = p.Process(model.Message{Sender: "AD-SHOP", Body: "Big sale this weekend"})
	assert.Equal(t, Filtered, r.Outcome)

	r = p.Process(model.Message{Sender: "SBI", Body: "Your OTP is 481923"})
	assert.Equal(t, Unmatched, r.Outcome)

	assert.True(t, l.Current().Amount.Equal(dec("4000")))
	assert.Equal(t, Stats{Received: 3, Filtered: 1, Unmatched: 1, Applied: 1}, p.Stats())

	require.Len(t, rec.entries, 2)
	assert.Equal(t, activity.ActionApply, rec.entries[0].Action)
	assert.Equal(t, "SBI", rec.entries[0].Sender)
	assert.True(t, rec.entries[0].Amount.Decimal.Equal(dec("1000")))
	assert.Equal(t, activity.ActionUnmatched, rec.entries[1].Action)
}

func TestProcess_WithoutPrefilter(t *testing.T) {
	p := New(extractor.New(), newLedger("0"))
	r := p.Process(model.Message{Sender: "AD-SHOP", Body: "Cashback of Rs 50 added"})
	assert.Equal(t, Applied, r.Outcome)
	assert.Equal(t, model.Credit, r.Match.Transaction.Direction)
}

func TestProcess_DroppedWhenUnset(t *testing.T) {
	rec := &memRecorder{}
	l := newLedger("")
	p := New(extractor.New(), l, WithRecorder(rec))

	r := p.Process(model.Message{Body: "Rs 250 credited to your account"})
	assert.Equal(t, Dropped, r.Outcome)
	assert.False(t, l.Current().Valid)
	assert.Equal(t, uint64(1), p.Stats().Dropped)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, activity.ActionDrop, rec.entries[0].Action)
}

func TestServe_DuplicatesAppliedTwice(t *testing.T) {
	l := newLedger("1000")
	p := New(extractor.New(), l, WithQueueSize(1))

	msg := model.Message{Sender: "SBI", Body: "debited by Rs 100"}
	require.NoError(t, p.Serve(context.Background(), sliceSource{msg, msg}))

	assert.True(t, l.Current().Amount.Equal(dec("800")))
	assert.Equal(t, uint64(2), p.Stats().Applied)
}

func TestServe_MultipleSources(t *testing.T) {
	l := newLedger("0")
	p := New(extractor.New(), l, WithQueueSize(2))

	credit := model.Message{Body: "Rs 10 credited"}
	debit := model.Message{Body: "Rs 3 debited"}
	a := make(sliceSource, 50)
	b := make(sliceSource, 50)
	for i := range a {
		a[i] = credit
		b[i] = debit
	}

	require.NoError(t, p.Serve(context.Background(), a, b))
	assert.True(t, l.Current().Amount.Equal(dec("350")))
	assert.Equal(t, uint64(100), p.Stats().Received)
}

func TestServe_SourceError(t *testing.T) {
	boom := errors.New("broker gone")
	p := New(extractor.New(), newLedger("0"))
	err := p.Serve(context.Background(), failingSource{err: boom}, sliceSource{{Body: "Rs 1 credited"}})
	assert.ErrorIs(t, err, boom)
}

func TestServe_NoSources(t *testing.T) {
	p := New(extractor.New(), newLedger("0"))
	assert.NoError(t, p.Serve(context.Background()))
	assert.ErrorIs(t, p.Submit(context.Background(), model.Message{}), ErrClosed)
}

func TestTrySubmit_QueueFull(t *testing.T) {
	p := New(extractor.New(), newLedger("0"), WithQueueSize(1))
	require.NoError(t, p.TrySubmit(model.Message{Body: "one"}))
	assert.ErrorIs(t, p.TrySubmit(model.Message{Body: "two"}), ErrQueueFull)

	p.Close()
	assert.ErrorIs(t, p.TrySubmit(model.Message{Body: "three"}), ErrClosed)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, uint64(1), p.Stats().Received)
}

func TestSubmit_ContextCanceledWhileFull(t *testing.T) {
	p := New(extractor.New(), newLedger("0"), WithQueueSize(1))
	require.NoError(t, p.Submit(context.Background(), model.Message{Body: "one"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, model.Message{Body: "two"}), context.DeadlineExceeded)
}

func TestSubmit_UnblockedByClose(t *testing.T) {
	p := New(extractor.New(), newLedger("0"), WithQueueSize(1))
	require.NoError(t, p.Submit(context.Background(), model.Message{Body: "one"}))

	errc := make(chan error, 1)
	go func() { errc <- p.Submit(context.Background(), model.Message{Body: "two"}) }()

	time.Sleep(10 * time.Millisecond)
	p.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Submit still blocked after Close")
	}
	p.Close() // idempotent
}

func TestRun_CanceledDrainsQueue(t *testing.T) {
	l := newLedger("0")
	p := New(extractor.New(), l, WithQueueSize(4))
	for range 3 {
		require.NoError(t, p.TrySubmit(model.Message{Body: "Rs 5 credited"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, l.Current().Amount.Equal(dec("15")))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "filtered", Filtered.String())
	assert.Equal(t, "unmatched", Unmatched.String())
	assert.Equal(t, "dropped", Dropped.String())
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestRun_CanceledRejectsLateSubmits(t *testing.T) {
	l := newLedger("1000")
	p := New(extractor.New(), l, WithQueueSize(256))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Run(ctx), context.Canceled)

	for range 200 {
		assert.Error(t, p.Submit(ctx, model.Message{Body: "Rs.5 debited"}))
	}
	assert.ErrorIs(t, p.Submit(context.Background(), model.Message{Body: "Rs.5 debited"}), ErrClosed)
	assert.True(t, l.Current().Amount.Equal(dec("1000")))
}

func TestServe_CanceledProcessesEveryAcceptedMessage(t *testing.T) {
	l := newLedger("1000")
	p := New(extractor.New(), l, WithQueueSize(8))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var accepted int64
	src := sourceFunc(func(ctx context.Context, handle func(context.Context, model.Message) error) error {
		for i := range 200 {
			if i == 50 {
				cancel()
			}
			if err := handle(ctx, model.Message{Body: "Rs.5 debited"}); err == nil {
				accepted++
			}
		}
		return ctx.Err()
	})

	err := p.Serve(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(50), accepted)
	assert.Equal(t, uint64(accepted), p.Stats().Applied)
	want := dec("1000").Sub(dec("5").Mul(decimal.NewFromInt(accepted)))
	assert.True(t, l.Current().Amount.Equal(want), "balance %s, want %s", l.Current().Amount, want)
}
