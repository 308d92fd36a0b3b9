// Package profile loads the indexing profile: which extractor handles each
// file extension, how text is chunked, and which transformers run.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunker"
	"github.com/yungbote/knowledge-indexer/internal/indexing/transformer"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const PathEnv = "INDEXING_PROFILE_PATH"

// Fallback is the extension key used when no specific entry matches.
const Fallback = "*"

//go:embed default.yaml
var defaultFS embed.FS

type Profile struct {
	Name         string               `yaml:"profile"`
	Version      int                  `yaml:"version"`
	Extractors   map[string]string    `yaml:"extractors"`
	Chunking     chunker.Config       `yaml:"chunking"`
	Transformers []transformer.Config `yaml:"transformers"`

	chain *transformer.Chain
}

// ExtractorFor returns the extractor name for a file extension, with or
// without the leading dot, falling back to the "*" entry.
func (p *Profile) ExtractorFor(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if name, ok := p.Extractors[ext]; ok && ext != "" {
		return name, true
	}
	name, ok := p.Extractors[Fallback]
	return name, ok
}

// Chain is the transformer chain built at load time.
func (p *Profile) Chain() *transformer.Chain { return p.chain }

// NewChunker builds a chunker for one run. enc is only consulted by the
// semantic technique.
func (p *Profile) NewChunker(enc chunker.Encoder) (chunker.Chunker, error) {
	return chunker.New(p.Chunking, enc)
}

// Load reads the profile from INDEXING_PROFILE_PATH, or the built-in default
// when unset. knownExtractor reports which extractor names are registered in
// this process.
func Load(log *logger.Logger, knownExtractor func(string) bool) (*Profile, error) {
	data, source, err := read()
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, knownExtractor)
	if err != nil {
		return nil, fmt.Errorf("indexing profile %s: %w", source, err)
	}
	if log != nil {
		log.Info("indexing profile loaded",
			"source", source,
			"technique", p.Chunking.Technique,
			"extractors", len(p.Extractors),
			"transformers", p.chain.Len(),
		)
	}
	return p, nil
}

// Default parses the built-in profile.
func Default(knownExtractor func(string) bool) (*Profile, error) {
	data, err := defaultFS.ReadFile("default.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data, knownExtractor)
}

func read() ([]byte, string, error) {
	if path := strings.TrimSpace(os.Getenv(PathEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, path, fmt.Errorf("read indexing profile: %w", err)
		}
		return data, path, nil
	}
	data, err := defaultFS.ReadFile("default.yaml")
	return data, "default", err
}

func Parse(data []byte, knownExtractor func(string) bool) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	normalized := make(map[string]string, len(p.Extractors))
	for ext, name := range p.Extractors {
		normalized[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = strings.TrimSpace(name)
	}
	p.Extractors = normalized
	if err := validate(&p, knownExtractor); err != nil {
		return nil, err
	}
	chain, err := transformer.BuildChain(p.Transformers)
	if err != nil {
		return nil, err
	}
	p.chain = chain
	return &p, nil
}

func validate(p *Profile, knownExtractor func(string) bool) error {
	if len(p.Extractors) == 0 {
		return errors.New("no extractors defined")
	}
	for ext, name := range p.Extractors {
		if ext == "" {
			return errors.New("empty extension key")
		}
		if name == "" {
			return fmt.Errorf("extension %q: extractor name is required", ext)
		}
		if knownExtractor != nil && !knownExtractor(name) {
			return fmt.Errorf("extension %q: extractor %q is not registered", ext, name)
		}
	}
	if !chunker.Known(p.Chunking.Technique) {
		return fmt.Errorf("unknown chunking technique %q", p.Chunking.Technique)
	}
	switch p.Chunking.Splitter {
	case "", chunker.SplitterPunctuation, chunker.SplitterNewline:
	default:
		return fmt.Errorf("unknown sentence splitter %q", p.Chunking.Splitter)
	}
	seen := map[string]bool{}
	for _, t := range p.Transformers {
		if !transformer.Known(t.Name) {
			return fmt.Errorf("unknown transformer %q", t.Name)
		}
		key := t.Name + "/" + t.Stage
		if seen[key] {
			return fmt.Errorf("duplicate transformer %q", t.Name)
		}
		seen[key] = true
	}
	return nil
}
