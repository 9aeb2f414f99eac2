package extractor

import (
	"regexp"
	"strings"

	"github.com/smsledger/smsledger/internal/model"
)

// Stage groups rules by how much the cascade trusts them.
type Stage string

const (
	StageBank     Stage = "bank"
	StageCredit   Stage = "credit"
	StageDebit    Stage = "debit"
	StageFallback Stage = "fallback"
)

// DirectionPolicy decides the direction of a matched rule.
type DirectionPolicy int

const (
	// FixedCredit and FixedDebit ignore the text.
	FixedCredit DirectionPolicy = iota
	FixedDebit
	// FromKeyword reads the "dir" capture group.
	FromKeyword
	// Inferred classifies the whole text with the credit/debit keyword sets.
	Inferred
)

// Rule is one step of the extraction cascade. Pattern must define an
// "amount" capture group; FromKeyword rules also need a "dir" group. A
// non-empty "frac" group rejects the match.
type Rule struct {
	Name  string
	Stage Stage
	// Signatures gate the rule: at least one must appear in the body or
	// the sender. Empty means ungated.
	Signatures []string
	// Guard is an additional gate evaluated on the body. Nil means ungated.
	Guard     func(text string) bool
	Pattern   *regexp.Regexp
	Direction DirectionPolicy
	Bounds    Bounds
}

// Try applies the rule to a single message. A rule that is gated out, does
// not match, captures an unparseable or non-positive amount, or falls
// outside its bounds reports false.
func (r Rule) Try(text, sender string) (model.Transaction, bool) {
	if !r.gated(text, sender) {
		return model.Transaction{}, false
	}

	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return model.Transaction{}, false
	}

	idx := r.Pattern.SubexpIndex("amount")
	if idx < 0 {
		return model.Transaction{}, false
	}
	if f := r.Pattern.SubexpIndex("frac"); f >= 0 && m[f] != "" {
		return model.Transaction{}, false
	}
	amount, err := parseAmount(m[idx])
	if err != nil || !amount.IsPositive() || !r.Bounds.Contains(amount) {
		return model.Transaction{}, false
	}

	dir, ok := r.direction(text, m)
	if !ok {
		return model.Transaction{}, false
	}
	return model.Transaction{Direction: dir, Amount: amount}, true
}

func (r Rule) gated(text, sender string) bool {
	if len(r.Signatures) > 0 {
		body := strings.ToLower(text)
		from := strings.ToLower(sender)
		found := false
		for _, sig := range r.Signatures {
			if strings.Contains(body, sig) || (from != "" && strings.Contains(from, sig)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Guard != nil && !r.Guard(text) {
		return false
	}
	return true
}

func (r Rule) direction(text string, m []string) (model.Direction, bool) {
	switch r.Direction {
	case FixedCredit:
		return model.Credit, true
	case FixedDebit:
		return model.Debit, true
	case FromKeyword:
		idx := r.Pattern.SubexpIndex("dir")
		if idx < 0 {
			return "", false
		}
		d, err := model.ParseDirection(m[idx])
		if err != nil {
			return "", false
		}
		return d, true
	case Inferred:
		return InferDirection(text), true
	}
	return "", false
}

const (
	currency = `(?:₹|\b(?:rupees|inr|rs)\.?)`
	number   = `(?P<amount>\d+(?:,\d+)*(?:\.\d+)?)`
	copula   = `(?:(?:has\s+been|is|was)\s+)?`
)

func compile(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

var (
	sbiRule = Rule{
		Name:       "sbi",
		Stage:      StageBank,
		Signatures: []string{"sbi"},
		Pattern:    compile(`(?P<dir>debited|credited)\s*(?:by|with)\s*(?:` + currency + `\s*)?` + number),
		Direction:  FromKeyword,
	}
	hdfcCardRule = Rule{
		Name:       "hdfc-card",
		Stage:      StageBank,
		Signatures: []string{"hdfc"},
		Pattern:    compile(`you(?:'|’)?ve\s+spent\s+` + currency + `\s*` + number + `\s+on\s+hdfc\s+bank`),
		Direction:  FixedDebit,
	}
	iciciCardRule = Rule{
		Name:       "icici-card",
		Stage:      StageBank,
		Signatures: []string{"icici"},
		Pattern:    compile(currency + `\s*` + number + `\s+spent\s+on\s+icici\s+bank`),
		Direction:  FixedDebit,
	}
	axisCardRule = Rule{
		Name:       "axis-card",
		Stage:      StageBank,
		Signatures: []string{"axis"},
		Pattern:    compile(`\bspent\s+card\s+no\.?\s+\w+\s+` + currency + `\s*` + number),
		Direction:  FixedDebit,
	}
)

var creditRules = []Rule{
	{
		Name:      "credit-keyword-currency",
		Pattern:   compile(`\b(?:credited|received|added|deposited)\b.*?` + currency + `\s*` + number),
		Direction: FixedCredit,
	},
	{
		Name:      "currency-credit-keyword",
		Pattern:   compile(currency + `\s*` + number + `\s*` + copula + `(?:credited|received|added)\b`),
		Direction: FixedCredit,
	},
	{
		Name:      "amount-of-credit",
		Pattern:   compile(`\bamount\s*of\s*` + currency + `\s*` + number + `\s*` + copula + `(?:credited|received)\b`),
		Direction: FixedCredit,
	},
}

var debitRules = []Rule{
	{
		Name:      "debit-keyword-currency",
		Pattern:   compile(`\b(?:debited|deducted|paid|withdrawn|charged|sent|spent)\b.*?` + currency + `\s*` + number),
		Direction: FixedDebit,
	},
	{
		Name:      "currency-debit-keyword",
		Pattern:   compile(currency + `\s*` + number + `\s*` + copula + `(?:debited|deducted|paid|spent)\b`),
		Direction: FixedDebit,
	},
	{
		Name:      "amount-of-debit",
		Pattern:   compile(`\bamount\s*of\s*` + currency + `\s*` + number + `\s*` + copula + `(?:debited|deducted)\b`),
		Direction: FixedDebit,
	},
}

var fallbackRules = []Rule{
	{
		Name:    "fallback-currency",
		Pattern: compile(currency + `\s*` + number),
	},
	{
		Name:    "fallback-decimal",
		Pattern: compile(`\b(?P<amount>\d+(?:,\d+)*\.\d+)\b`),
	},
	{
		Name:    "fallback-amount-of",
		Pattern: compile(`\bamount\s+of\s+` + number),
	},
	{
		Name: "fallback-bare",
		// frac keeps a rejected decimal from being re-read as its integer part.
		Pattern: compile(`\b(?P<amount>\d+(?:,\d+)*)(?P<frac>\.\d+)?\b`),
	},
}

// DefaultRules returns the built-in cascade in priority order.
func DefaultRules() []Rule {
	rules := []Rule{sbiRule, hdfcCardRule, iciciCardRule, axisCardRule}
	for _, r := range creditRules {
		r.Stage = StageCredit
		rules = append(rules, r)
	}
	for _, r := range debitRules {
		r.Stage = StageDebit
		rules = append(rules, r)
	}
	for _, r := range fallbackRules {
		r.Stage = StageFallback
		r.Guard = LooksFinancial
		r.Direction = Inferred
		r.Bounds = FallbackBounds
		rules = append(rules, r)
	}
	return rules
}
