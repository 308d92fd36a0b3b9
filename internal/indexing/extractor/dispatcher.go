// Package extractor turns a knowledge document's source into raw text
// blocks, either by downloading an uploaded file and converting it by
// extension or by pulling it from a connected workspace.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/platform/blob"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Connector pulls a document from an external workspace.
type Connector interface {
	Source() string
	Type() string
	Extract(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error)
}

// ExtensionResolver maps a file extension to a registered format extractor
// name. It is satisfied by the indexing profile.
type ExtensionResolver interface {
	ExtractorFor(ext string) (string, bool)
}

type Dispatcher struct {
	log        *logger.Logger
	store      blob.Store
	resolver   ExtensionResolver
	formats    *Formats
	connectors map[string]Connector
	scratchDir string
}

type DispatcherOption func(*Dispatcher)

// WithScratchDir sets the parent directory for per-document temp dirs.
func WithScratchDir(dir string) DispatcherOption {
	return func(d *Dispatcher) { d.scratchDir = dir }
}

func WithConnectors(cs ...Connector) DispatcherOption {
	return func(d *Dispatcher) {
		for _, c := range cs {
			if c != nil {
				d.connectors[key(c.Source(), c.Type())] = c
			}
		}
	}
}

func NewDispatcher(log *logger.Logger, store blob.Store, resolver ExtensionResolver, formats *Formats, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:        log.With("component", "ExtractorDispatcher"),
		store:      store,
		resolver:   resolver,
		formats:    formats,
		connectors: map[string]Connector{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func key(source, typ string) string { return source + "/" + typ }

// Extract returns the document's text blocks. Blocks carry no metadata; the
// transform stage stamps identity fields later.
func (d *Dispatcher) Extract(ctx context.Context, doc *types.KnowledgeDocument) ([]chunk.Chunk, error) {
	src, err := doc.Source()
	if err != nil {
		return nil, &IllegalConfigurationError{Reason: err.Error()}
	}

	var texts []string
	switch {
	case src.Source == types.SourceManual && src.Type == types.TypeManualFile:
		texts, err = d.extractFile(ctx, doc, src)
	case src.Source == types.SourceManual && src.Type == types.TypeManualURL:
		return nil, &UnsupportedDatasourceError{Source: src.Source, Type: src.Type, Reason: "manual-url is not supported"}
	default:
		c, ok := d.connectors[key(src.Source, src.Type)]
		if !ok {
			return nil, &UnsupportedDatasourceError{Source: src.Source, Type: src.Type}
		}
		texts, err = c.Extract(ctx, doc, src)
	}
	if err != nil {
		return nil, err
	}

	out := make([]chunk.Chunk, 0, len(texts))
	for _, t := range texts {
		out = append(out, chunk.New(t))
	}
	return out, nil
}

func (d *Dispatcher) extractFile(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error) {
	if src.CompletePath == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("document %d has no completePath", doc.ID)}
	}
	ext := src.Extension()
	name, ok := d.resolver.ExtractorFor(ext)
	if !ok {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("no extractor configured for extension %q", ext)}
	}
	fe, err := d.formats.mustGet(name)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(d.scratchDir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			d.log.Warn("scratch dir cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	base := path.Base(src.CompletePath)
	local := filepath.Join(dir, base)
	if err := blob.Download(ctx, d.store, src.CompletePath, local); err != nil {
		return nil, fmt.Errorf("download document %d: %w", doc.ID, err)
	}

	d.log.Debug("extracting file",
		"knowledge_document_id", doc.ID,
		"extension", ext,
		"extractor", name,
	)
	blocks, err := fe.Extract(ctx, File{Path: local, Name: base, MimeType: src.MimeType})
	if err != nil {
		return nil, fmt.Errorf("%s extract: %w", name, err)
	}
	return blocks, nil
}
