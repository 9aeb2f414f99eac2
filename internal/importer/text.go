package importer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/smsledger/smsledger/internal/model"
)

// TextParser parses plain-text exports: one message per line, optionally
// prefixed by the sender and a tab.
type TextParser struct{}

// Format returns the parser name.
func (p *TextParser) Format() string { return "text" }

// Extensions returns the handled file extensions.
func (p *TextParser) Extensions() []string { return []string{".txt"} }

// Parse reads a text export and returns Messages. Blank lines are skipped.
func (p *TextParser) Parse(r io.Reader) ([]model.Message, error) {
	var msgs []model.Message
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var msg model.Message
		if sender, body, ok := strings.Cut(line, "\t"); ok {
			msg.Sender = strings.TrimSpace(sender)
			msg.Body = strings.TrimSpace(body)
		} else {
			msg.Body = line
		}
		if msg.Body == "" {
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading SMS text: %w", err)
	}
	return msgs, nil
}
