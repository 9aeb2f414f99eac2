// Package activity keeps an append-only CSV record of ledger activity under
// <dataDir>/logs/activity.csv.
package activity

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smsledger/smsledger/internal/ledger"
	"github.com/smsledger/smsledger/internal/model"
)

// Action names what happened to the ledger.
type Action string

const (
	ActionSet       Action = "set"
	ActionApply     Action = "apply"
	ActionDrop      Action = "drop" // transaction found while the balance was unset
	ActionUnmatched Action = "unmatched"
	ActionReset     Action = "reset"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	Action    Action
	Sender    string
	Direction model.Direction
	Amount    decimal.NullDecimal
	Balance   ledger.Balance
	Rule      string
}

// Header is the CSV header for activity.csv.
const Header = "timestamp,action,sender,direction,amount,balance,rule"

const (
	numFields    = 7
	logDir       = "logs"
	logFile      = "logs/activity.csv"
	colTimestamp = 0
	colAction    = 1
	colSender    = 2
	colDirection = 3
	colAmount    = 4
	colBalance   = 5
	colRule      = 6
)

// MarshalEntry converts an Entry to a CSV row. Absent amounts and unset
// balances are written as empty fields.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colAction] = string(e.Action)
	row[colSender] = e.Sender
	row[colDirection] = string(e.Direction)
	if e.Amount.Valid {
		row[colAmount] = e.Amount.Decimal.String()
	}
	if e.Balance.Valid {
		row[colBalance] = e.Balance.Amount.String()
	}
	row[colRule] = e.Rule
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	e := Entry{
		Timestamp: ts,
		Action:    Action(record[colAction]),
		Sender:    record[colSender],
		Rule:      record[colRule],
	}
	if s := record[colDirection]; s != "" {
		if e.Direction, err = model.ParseDirection(s); err != nil {
			return Entry{}, err
		}
	}
	if s := record[colAmount]; s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing amount %q: %w", s, err)
		}
		e.Amount = decimal.NewNullDecimal(d)
	}
	if s := record[colBalance]; s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing balance %q: %w", s, err)
		}
		e.Balance = ledger.Some(d)
	}
	return e, nil
}

// Append writes entries to <dataDir>/logs/activity.csv, creating the file and header if needed.
func Append(dataDir string, entries []Entry) error {
	dir := filepath.Join(dataDir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(dataDir, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <dataDir>/logs/activity.csv.
// Returns an empty slice if the file does not exist.
func Read(dataDir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dataDir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

// Tail returns the last n entries, or all of them when n <= 0.
func Tail(dataDir string, n int) ([]Entry, error) {
	entries, err := Read(dataDir)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Log appends entries for a single data directory and is safe for
// concurrent use.
type Log struct {
	mu      sync.Mutex
	dataDir string
	now     func() time.Time
}

// NewLog returns a Log rooted at dataDir.
func NewLog(dataDir string) *Log {
	return &Log{dataDir: dataDir, now: time.Now}
}

// Record stamps e with the current time when it has none and appends it.
func (l *Log) Record(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return Append(l.dataDir, []Entry{e})
}
