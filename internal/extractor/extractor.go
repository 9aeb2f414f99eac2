// Package extractor turns bank notification text into transactions using an
// ordered cascade of pattern rules. Extraction is pure and safe for
// concurrent use.
package extractor

import (
	"strings"

	"github.com/smsledger/smsledger/internal/model"
)

// DefaultSenders are bank identifiers recognised in message senders.
var DefaultSenders = []string{"SBI", "HDFC", "ICICI", "AXIS", "FEDERAL", "CITI"}

var parseWords = []string{"debited", "credited", "upi"}

// Match is a successful extraction together with the rule that produced it.
type Match struct {
	Transaction model.Transaction
	Rule        string
	Stage       Stage
}

// Extractor holds an immutable rule cascade.
type Extractor struct {
	rules      []Rule
	senders    []string
	signatures []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSenders replaces the known bank sender identifiers used by ShouldParse.
func WithSenders(ids ...string) Option {
	return func(e *Extractor) {
		e.senders = lowerAll(ids)
	}
}

// WithRules replaces the cascade. Intended for tests and experiments; the
// slice is copied.
func WithRules(rules []Rule) Option {
	return func(e *Extractor) {
		e.rules = append([]Rule(nil), rules...)
	}
}

// New returns an Extractor with the default cascade.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		rules:   DefaultRules(),
		senders: lowerAll(DefaultSenders),
	}
	for _, opt := range opts {
		opt(e)
	}
	seen := make(map[string]bool)
	for _, r := range e.rules {
		for _, sig := range r.Signatures {
			sig = strings.ToLower(sig)
			if !seen[sig] {
				seen[sig] = true
				e.signatures = append(e.signatures, sig)
			}
		}
	}
	return e
}

// Rules returns a copy of the cascade in priority order.
func (e *Extractor) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Extract runs the cascade on text with no sender information.
func (e *Extractor) Extract(text string) (model.Transaction, bool) {
	m, ok := e.ExtractMessage(model.Message{Body: text})
	return m.Transaction, ok
}

// ExtractMessage runs the cascade on a message. The first rule that yields
// a transaction wins.
func (e *Extractor) ExtractMessage(msg model.Message) (Match, bool) {
	for _, r := range e.rules {
		if txn, ok := r.Try(msg.Body, msg.Sender); ok {
			return Match{Transaction: txn, Rule: r.Name, Stage: r.Stage}, true
		}
	}
	return Match{}, false
}

// ShouldParse is a cheap pre-filter: the sender is a known bank, or the body
// mentions debited/credited/upi or a bank signature. It never changes what
// ExtractMessage would return.
func (e *Extractor) ShouldParse(msg model.Message) bool {
	from := strings.ToLower(msg.Sender)
	if from != "" {
		for _, id := range e.senders {
			if strings.Contains(from, id) {
				return true
			}
		}
	}
	body := strings.ToLower(msg.Body)
	for _, w := range parseWords {
		if strings.Contains(body, w) {
			return true
		}
	}
	for _, sig := range e.signatures {
		if strings.Contains(body, sig) {
			return true
		}
	}
	return false
}

var std = New()

// Extract runs the default cascade on text.
func Extract(text string) (model.Transaction, bool) {
	return std.Extract(text)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
