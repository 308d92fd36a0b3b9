package extractor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// File is a downloaded source file handed to a format extractor.
type File struct {
	Path     string
	Name     string
	MimeType string
}

// FormatExtractor turns one local file into text blocks.
type FormatExtractor interface {
	Name() string
	Extract(ctx context.Context, f File) ([]string, error)
}

// Formats is the set of format extractors available in this process. Cloud
// backed extractors are only registered when their client is configured.
type Formats struct {
	mu    sync.RWMutex
	items map[string]FormatExtractor
}

func NewFormats(items ...FormatExtractor) *Formats {
	f := &Formats{items: map[string]FormatExtractor{}}
	for _, it := range items {
		f.Register(it)
	}
	return f
}

func (f *Formats) Register(fe FormatExtractor) {
	if fe == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[fe.Name()] = fe
}

func (f *Formats) Get(name string) (FormatExtractor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fe, ok := f.items[name]
	return fe, ok
}

// Known reports whether name is registered.
func (f *Formats) Known(name string) bool {
	_, ok := f.Get(name)
	return ok
}

func (f *Formats) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.items))
	for name := range f.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *Formats) mustGet(name string) (FormatExtractor, error) {
	fe, ok := f.Get(name)
	if !ok {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("extractor %q is not registered", name)}
	}
	return fe, nil
}
