// Package pipeline moves messages from sources through the extractor into
// the ledger. Any number of producers feed a bounded queue drained by a
// single consumer, so ledger mutations happen in queue order.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smsledger/smsledger/internal/activity"
	"github.com/smsledger/smsledger/internal/extractor"
	"github.com/smsledger/smsledger/internal/ledger"
	"github.com/smsledger/smsledger/internal/model"
)

var (
	// ErrQueueFull is returned by TrySubmit when the queue has no room.
	ErrQueueFull = errors.New("pipeline: queue full")
	// ErrClosed is returned when submitting to a closed pipeline.
	ErrClosed = errors.New("pipeline: closed")
)

// DefaultQueueSize is used when no size is configured.
const DefaultQueueSize = 64

// Source produces messages until it is exhausted or ctx is done.
type Source interface {
	Consume(ctx context.Context, handle func(context.Context, model.Message) error) error
}

// Recorder receives an activity entry for every processed message.
type Recorder interface {
	Record(e activity.Entry) error
}

// Outcome says what happened to one message.
type Outcome int

const (
	Filtered  Outcome = iota // rejected by the pre-filter
	Unmatched                // no transaction found
	Dropped                  // transaction found but the balance is unset
	Applied
)

func (o Outcome) String() string {
	switch o {
	case Filtered:
		return "filtered"
	case Unmatched:
		return "unmatched"
	case Dropped:
		return "dropped"
	case Applied:
		return "applied"
	}
	return "unknown"
}

// Result is the outcome of processing a message.
type Result struct {
	Outcome Outcome
	Match   extractor.Match
	Balance ledger.Balance
}

// Stats counts processed messages by outcome.
type Stats struct {
	Received  uint64
	Filtered  uint64
	Unmatched uint64
	Dropped   uint64
	Applied   uint64
}

// Pipeline is safe for concurrent Submit calls. Run must be called once.
type Pipeline struct {
	extractor *extractor.Extractor
	ledger    *ledger.Ledger
	queue     chan model.Message
	prefilter bool
	recorder  Recorder
	logger    *zap.Logger

	mu        sync.RWMutex // guards closed against sends on a closed queue
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once

	received, filtered, unmatched, dropped, applied atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQueueSize sets the queue capacity. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queue = make(chan model.Message, n)
		}
	}
}

// WithPrefilter skips messages that do not look like bank notifications.
func WithPrefilter(on bool) Option {
	return func(p *Pipeline) { p.prefilter = on }
}

// WithRecorder records each outcome, e.g. to the activity log.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a pipeline feeding l through ex.
func New(ex *extractor.Extractor, l *ledger.Ledger, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: ex,
		ledger:    l,
		queue:     make(chan model.Message, DefaultQueueSize),
		logger:    zap.NewNop(),
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit enqueues msg, blocking while the queue is full.
func (p *Pipeline) Submit(ctx context.Context, msg model.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- msg:
		return nil
	case <-p.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues msg or fails with ErrQueueFull without blocking.
func (p *Pipeline) TrySubmit(msg model.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages. Run returns once the queue is drained.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
}

// Run consumes the queue until Close or ctx is done. On cancellation it
// closes the pipeline and still processes every message already accepted.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-p.queue:
			if !ok {
				return nil
			}
			p.Process(msg)
		case <-ctx.Done():
			p.Close()
			for msg := range p.queue {
				p.Process(msg)
			}
			return ctx.Err()
		}
	}
}

// Serve runs the consumer and every source concurrently. The pipeline is
// closed when all sources finish, and Serve returns after the queue drains.
// The first source error cancels the others.
func (p *Pipeline) Serve(ctx context.Context, sources ...Source) error {
	g, gctx := errgroup.WithContext(ctx)

	var producers sync.WaitGroup
	for _, src := range sources {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			return src.Consume(gctx, p.Submit)
		})
	}
	g.Go(func() error {
		producers.Wait()
		p.Close()
		return nil
	})
	// The consumer ignores cancellation and stops only after Close, once
	// every accepted message has been processed.
	g.Go(func() error {
		return p.Run(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Process runs one message through the pre-filter, the extractor and the
// ledger. It is called by the consumer goroutine; calling it directly
// bypasses the queue.
func (p *Pipeline) Process(msg model.Message) Result {
	p.received.Add(1)

	if p.prefilter && !p.extractor.ShouldParse(msg) {
		p.filtered.Add(1)
		p.logger.Debug("message filtered", zap.String("sender", msg.Sender))
		return Result{Outcome: Filtered}
	}

	m, ok := p.extractor.ExtractMessage(msg)
	if !ok {
		p.unmatched.Add(1)
		p.logger.Debug("no transaction found", zap.String("sender", msg.Sender))
		p.record(activity.Entry{Action: activity.ActionUnmatched, Sender: msg.Sender, Balance: p.ledger.Current()})
		return Result{Outcome: Unmatched}
	}

	p.logger.Debug("transaction found",
		zap.String("sender", msg.Sender),
		zap.String("rule", m.Rule),
		zap.String("direction", string(m.Transaction.Direction)),
		zap.String("amount", m.Transaction.Amount.String()))

	b, applied := p.ledger.Apply(m.Transaction)
	entry := activity.Entry{
		Sender:    msg.Sender,
		Direction: m.Transaction.Direction,
		Amount:    decimal.NewNullDecimal(m.Transaction.Amount),
		Balance:   b,
		Rule:      m.Rule,
	}
	if !applied {
		p.dropped.Add(1)
		entry.Action = activity.ActionDrop
		p.record(entry)
		return Result{Outcome: Dropped, Match: m, Balance: b}
	}
	p.applied.Add(1)
	entry.Action = activity.ActionApply
	p.record(entry)
	return Result{Outcome: Applied, Match: m, Balance: b}
}

func (p *Pipeline) record(e activity.Entry) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(e); err != nil {
		p.logger.Warn("recording activity failed", zap.Error(err))
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:  p.received.Load(),
		Filtered:  p.filtered.Load(),
		Unmatched: p.unmatched.Load(),
		Dropped:   p.dropped.Load(),
		Applied:   p.applied.Load(),
	}
}
