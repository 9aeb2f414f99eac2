package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/smsledger/smsledger/internal/model"
)

// CSVParser parses CSV exports with a sender,body,received_at header.
// Only body is required; columns may appear in any order.
type CSVParser struct{}

const (
	csvColSender   = "sender"
	csvColBody     = "body"
	csvColReceived = "received_at"
)

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Extensions returns the handled file extensions.
func (p *CSVParser) Extensions() []string { return []string{".csv"} }

// Parse reads a CSV export and returns Messages. Rows with an empty body are skipped.
func (p *CSVParser) Parse(r io.Reader) ([]model.Message, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading SMS CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	colBody := slices.Index(header, csvColBody)
	if colBody < 0 {
		return nil, errors.New("missing body column")
	}
	colSender := slices.Index(header, csvColSender)
	colReceived := slices.Index(header, csvColReceived)

	var msgs []model.Message
	for i, rec := range records[1:] {
		msg, err := parseCSVRow(rec, colSender, colBody, colReceived)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if msg.Body == "" {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func parseCSVRow(rec []string, colSender, colBody, colReceived int) (model.Message, error) {
	field := func(col int) string {
		if col < 0 || col >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[col])
	}

	msg := model.Message{
		Sender: field(colSender),
		Body:   field(colBody),
	}
	if s := field(colReceived); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return model.Message{}, fmt.Errorf("parsing received_at %q: %w", s, err)
		}
		msg.Received = ts
	}
	return msg, nil
}
