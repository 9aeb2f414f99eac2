// Package importer reads exported SMS inboxes into messages.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smsledger/smsledger/internal/model"
)

// Parser converts an SMS export into Messages.
type Parser interface {
	Parse(r io.Reader) ([]model.Message, error)
	Format() string
	// Extensions lists the lower-case file extensions handled, with dot.
	Extensions() []string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
	byExt   map[string]Parser
}

// FileInfo describes an export file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		byExt:   make(map[string]Parser),
	}
}

// Register adds a parser. Panics on duplicate format or extension.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	for _, ext := range p.Extensions() {
		if _, ok := r.byExt[ext]; ok {
			panic("duplicate parser extension: " + ext)
		}
	}
	r.parsers[key] = p
	for _, ext := range p.Extensions() {
		r.byExt[ext] = p
	}
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile returns the parser handling the file's extension, or nil.
func (r *Registry) ForFile(name string) Parser {
	return r.byExt[strings.ToLower(filepath.Ext(name))]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CSVParser{})
	r.Register(&TextParser{})
	return r
}

// importDir is the subdirectory for SMS exports.
const importDir = "import"

// processedDir is the subdirectory for processed exports.
const processedDir = "import/processed"

// Scan returns files in <dataDir>/import/ that some parser in reg handles.
func Scan(dataDir string, reg *Registry) ([]FileInfo, error) {
	dir := filepath.Join(dataDir, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if reg.ForFile(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(dataDir, fileName string) error {
	src := filepath.Join(dataDir, importDir, fileName)
	dstDir := filepath.Join(dataDir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// ParseFile opens path and parses it with the parser matching its extension.
func ParseFile(reg *Registry, path string) ([]model.Message, error) {
	p := reg.ForFile(path)
	if p == nil {
		return nil, fmt.Errorf("no parser for %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	msgs, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return msgs, nil
}
