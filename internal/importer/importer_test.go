package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsledger/smsledger/internal/model"
)

func TestCSVParser_Parse(t *testing.T) {
	data, err := os.ReadFile("../../testdata/sms_export.csv")
	require.NoError(t, err)

	p := &CSVParser{}
	msgs, err := p.Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	assert.Equal(t, "SBI", msgs[0].Sender)
	assert.Contains(t, msgs[0].Body, "debited by Rs.1,000.50")
	assert.Equal(t, 2025, msgs[0].Received.Year())
	assert.Equal(t, 5, msgs[0].Received.Day())

	// ICICI row has no timestamp.
	assert.Equal(t, "ICICI", msgs[3].Sender)
	assert.True(t, msgs[3].Received.IsZero())
}

func TestCSVParser_ColumnOrder(t *testing.T) {
	csv := "received_at,Body,SENDER\n,hello,VM-HDFCBK\n"
	msgs, err := (&CSVParser{}).Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "VM-HDFCBK", msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Body)
}

func TestCSVParser_BodyOnly(t *testing.T) {
	msgs, err := (&CSVParser{}).Parse(strings.NewReader("body\nRs 10 debited\n\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].HasSender())
}

func TestCSVParser_EmptyFile(t *testing.T) {
	msgs, err := (&CSVParser{}).Parse(strings.NewReader("sender,body,received_at\n"))
	require.NoError(t, err)
	assert.Nil(t, msgs)

	msgs, err = (&CSVParser{}).Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestCSVParser_SkipsEmptyBody(t *testing.T) {
	msgs, err := (&CSVParser{}).Parse(strings.NewReader("sender,body\nSBI,\nSBI,Rs 5 debited\n"))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCSVParser_MissingBody(t *testing.T) {
	_, err := (&CSVParser{}).Parse(strings.NewReader("sender,text\nSBI,x\n"))
	assert.ErrorContains(t, err, "missing body column")
}

func TestCSVParser_BadTimestamp(t *testing.T) {
	_, err := (&CSVParser{}).Parse(strings.NewReader("sender,body,received_at\nSBI,x,yesterday\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "parsing received_at")
}

func TestTextParser_Parse(t *testing.T) {
	data, err := os.ReadFile("../../testdata/sms_export.txt")
	require.NoError(t, err)

	msgs, err := (&TextParser{}).Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, "SBI", msgs[0].Sender)
	assert.Equal(t, "Your a/c is credited with Rs 500 by UPI ref 12345", msgs[0].Body)
	assert.False(t, msgs[1].HasSender())
	assert.Equal(t, "UPI payment of 120.50 to CAFE COFFEE", msgs[2].Body)
	assert.Equal(t, "AXIS", msgs[3].Sender)
}

func TestParserFormats(t *testing.T) {
	assert.Equal(t, "csv", (&CSVParser{}).Format())
	assert.Equal(t, "text", (&TextParser{}).Format())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nonexistent"))
	assert.Nil(t, r.ForFile("a.csv"))
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&CSVParser{})
	assert.NotNil(t, r.Get("CSV"))
	assert.NotNil(t, r.ForFile("INBOX.CSV"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&CSVParser{})
	assert.Panics(t, func() { r.Register(&CSVParser{}) })
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.Get("csv"))
	assert.NotNil(t, r.Get("text"))
	assert.Equal(t, "text", r.ForFile("x.txt").Format())
	assert.Nil(t, r.ForFile("x.pdf"))
}

func TestScan_FindsExports(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(importDir, "inbox.csv"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "inbox.txt"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "photo.jpg"), []byte("data"), 0o644))

	files, err := Scan(dir, DefaultRegistry())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "inbox.csv", files[0].Name)
	assert.Equal(t, "inbox.txt", files[1].Name)
}

func TestScan_IgnoresProcessedDir(t *testing.T) {
	dir := t.TempDir()
	processedDir := filepath.Join(dir, "import", "processed")
	require.NoError(t, os.MkdirAll(processedDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "new.csv"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(processedDir, "old.csv"), []byte("data"), 0o644))

	files, err := Scan(dir, DefaultRegistry())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "new.csv", files[0].Name)
}

func TestScan_EmptyDir(t *testing.T) {
	files, err := Scan(t.TempDir(), DefaultRegistry())
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "inbox.csv"), []byte("data"), 0o644))

	require.NoError(t, MarkProcessed(dir, "inbox.csv"))

	_, err := os.Stat(filepath.Join(importDir, "inbox.csv"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "import", "processed", "inbox.csv"))
	assert.NoError(t, err)
}

func TestParseFile_NoParser(t *testing.T) {
	_, err := ParseFile(DefaultRegistry(), "inbox.pdf")
	assert.ErrorContains(t, err, "no parser")
}

func collect(msgs *[]model.Message) func(context.Context, model.Message) error {
	return func(_ context.Context, m model.Message) error {
		*msgs = append(*msgs, m)
		return nil
	}
}

func TestFileSource_ScanAndMove(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	data, err := os.ReadFile("../../testdata/sms_export.csv")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "inbox.csv"), data, 0o644))

	var got []model.Message
	src := NewFileSource(dir)
	require.NoError(t, src.Consume(context.Background(), collect(&got)))

	assert.Len(t, got, 5)
	_, err = os.Stat(filepath.Join(dir, "import", "processed", "inbox.csv"))
	assert.NoError(t, err)

	// Second run has nothing left to read.
	got = nil
	require.NoError(t, src.Consume(context.Background(), collect(&got)))
	assert.Empty(t, got)
}

func TestFileSource_ExplicitPaths(t *testing.T) {
	var got []model.Message
	src := NewFileSource(t.TempDir(), WithPaths("../../testdata/sms_export.csv", "../../testdata/sms_export.txt"))
	require.NoError(t, src.Consume(context.Background(), collect(&got)))

	assert.Len(t, got, 9)
	_, err := os.Stat("../../testdata/sms_export.csv")
	assert.NoError(t, err, "explicit files stay in place")
}

func TestFileSource_HandlerErrorLeavesFile(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "a.txt"), []byte("one\ntwo\n"), 0o644))

	boom := errors.New("queue closed")
	src := NewFileSource(dir)
	err := src.Consume(context.Background(), func(context.Context, model.Message) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = os.Stat(filepath.Join(importDir, "a.txt"))
	assert.NoError(t, err)
}

func TestFileSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []model.Message
	src := NewFileSource(t.TempDir(), WithPaths("../../testdata/sms_export.txt"))
	assert.ErrorIs(t, src.Consume(ctx, collect(&got)), context.Canceled)
	assert.Empty(t, got)
}
