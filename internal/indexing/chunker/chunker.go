// Package chunker splits extracted text blocks into chunks.
package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
)

const (
	TechniqueRecursive = "recursive"
	TechniqueToken     = "token"
	TechniqueMarkdown  = "markdown"
	TechniqueSentence  = "sentence"
	TechniqueSemantic  = "semantic"
)

// Chunker splits each input text into zero or more chunks. The outer slice
// is aligned with the input.
type Chunker interface {
	Chunk(ctx context.Context, texts []string) ([][]string, error)
}

// Encoder embeds sentences for semantic chunking.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

type EncoderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EncoderFunc) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

type Config struct {
	Technique string `yaml:"technique"`
	// Encoding names the BPE ranks used to measure chunk sizes in tokens;
	// "estimate" uses the byte heuristic.
	Encoding         string  `yaml:"encoding"`
	Splitter         string  `yaml:"splitter"`
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	MinTokens        int     `yaml:"min_tokens"`
	MaxTokens        int     `yaml:"max_tokens"`
	Threshold        float64 `yaml:"threshold"`
	DynamicThreshold bool    `yaml:"dynamic_threshold"`
	Percentile       float64 `yaml:"percentile"`
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 512
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 0
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = c.ChunkSize
	}
	if c.MinTokens < 0 || c.MinTokens > c.MaxTokens {
		c.MinTokens = 0
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.Percentile <= 0 || c.Percentile > 100 {
		c.Percentile = 95
	}
	if c.Splitter == "" {
		c.Splitter = SplitterPunctuation
	}
	return c
}

func (c Config) counter() tokens.Counter {
	if strings.EqualFold(c.Encoding, "estimate") {
		return tokens.Estimate
	}
	return tokens.Tiktoken(c.Encoding)
}

type constructor func(cfg Config, enc Encoder) (Chunker, error)

var registry = map[string]constructor{
	TechniqueRecursive: newRecursive,
	TechniqueToken:     newToken,
	TechniqueMarkdown:  newMarkdown,
	TechniqueSentence:  newSentence,
	TechniqueSemantic:  newSemantic,
}

// Techniques lists the registered technique names.
func Techniques() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Known reports whether name is a registered technique. The empty name is
// the pass-through chunker.
func Known(name string) bool {
	if name == "" {
		return true
	}
	_, ok := registry[name]
	return ok
}

// New builds the chunker for cfg.Technique. enc is only used by semantic
// chunking and may be nil otherwise.
func New(cfg Config, enc Encoder) (Chunker, error) {
	if cfg.Technique == "" {
		return passThrough{}, nil
	}
	ctor, ok := registry[cfg.Technique]
	if !ok {
		return nil, fmt.Errorf("chunker: unknown technique %q", cfg.Technique)
	}
	return ctor(cfg.withDefaults(), enc)
}

type passThrough struct{}

func (passThrough) Chunk(_ context.Context, texts []string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, t := range texts {
		out[i] = []string{t}
	}
	return out, nil
}

// Normalize trims chunks, strips one leading sentence terminator left by the
// splitter, and drops chunks that end up empty.
func Normalize(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.HasPrefix(c, ".") {
			c = strings.TrimSpace(strings.TrimPrefix(c, "."))
		} else if strings.HasPrefix(c, "。") {
			c = strings.TrimSpace(strings.TrimPrefix(c, "。"))
		}
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
