package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/model"
)

// FileSource feeds messages from export files to a handler. With no explicit
// paths it drains <dataDir>/import/ and moves each fully handled file to
// import/processed/.
type FileSource struct {
	dataDir  string
	paths    []string
	registry *Registry
	logger   *zap.Logger
}

// SourceOption configures a FileSource.
type SourceOption func(*FileSource)

// WithPaths reads the given files instead of scanning the import directory.
// Explicit files are never moved.
func WithPaths(paths ...string) SourceOption {
	return func(s *FileSource) { s.paths = paths }
}

// WithRegistry replaces the default parser registry.
func WithRegistry(r *Registry) SourceOption {
	return func(s *FileSource) { s.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SourceOption {
	return func(s *FileSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileSource returns a FileSource rooted at dataDir.
func NewFileSource(dataDir string, opts ...SourceOption) *FileSource {
	s := &FileSource{
		dataDir:  dataDir,
		registry: DefaultRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume parses each file and passes its messages to handle in file order.
// It stops at the first handler error or when ctx is done.
func (s *FileSource) Consume(ctx context.Context, handle func(context.Context, model.Message) error) error {
	if len(s.paths) > 0 {
		for _, path := range s.paths {
			if _, err := s.consumeFile(ctx, path, handle); err != nil {
				return err
			}
		}
		return nil
	}

	files, err := Scan(s.dataDir, s.registry)
	if err != nil {
		return err
	}
	for _, f := range files {
		n, err := s.consumeFile(ctx, f.Path, handle)
		if err != nil {
			return err
		}
		if err := MarkProcessed(s.dataDir, f.Name); err != nil {
			return err
		}
		s.logger.Info("import file processed", zap.String("file", f.Name), zap.Int("messages", n))
	}
	return nil
}

func (s *FileSource) consumeFile(ctx context.Context, path string, handle func(context.Context, model.Message) error) (int, error) {
	msgs, err := ParseFile(s.registry, path)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("import file parsed", zap.String("path", path), zap.Int("messages", len(msgs)))
	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := handle(ctx, msg); err != nil {
			return i, fmt.Errorf("handling message %d of %s: %w", i+1, path, err)
		}
	}
	return len(msgs), nil
}
