package extractor

import (
	"regexp"

	"github.com/smsledger/smsledger/internal/model"
)

var (
	financialRe = regexp.MustCompile(`(?i)₹|\brupees?\b|\b(?:rs|inr)(?:[.\s]|\d|$)|\b(?:debited|credited|upi)\b|\d\.\d`)

	creditWordsRe = regexp.MustCompile(`(?i)\b(?:credited|received|added|deposit(?:ed)?|refund(?:ed)?|cashback|rewards?|bonus|transfer\s+received)\b`)
	debitWordsRe  = regexp.MustCompile(`(?i)\b(?:debited|spent|sent|purchase|withdrawn|payment|transfer|charged|deducted)\b`)
)

// LooksFinancial reports whether text carries a currency marker, one of the
// words debited/credited/upi, or a decimal-formatted number.
func LooksFinancial(text string) bool {
	return financialRe.MatchString(text)
}

// Classify looks for credit keywords first, then debit keywords. It reports
// false when the text contains neither.
func Classify(text string) (model.Direction, bool) {
	switch {
	case creditWordsRe.MatchString(text):
		return model.Credit, true
	case debitWordsRe.MatchString(text):
		return model.Debit, true
	}
	return "", false
}

// InferDirection is Classify with ambiguous text treated as a debit.
func InferDirection(text string) model.Direction {
	if d, ok := Classify(text); ok {
		return d
	}
	return model.Debit
}
