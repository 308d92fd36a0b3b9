// Package transformer enriches extracted blocks and chunks before they are
// persisted and embedded.
package transformer

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
)

// Stages a transformer can attach to. StagePre runs on extracted blocks
// before chunking; StagePost runs on the final chunks.
const (
	StagePre  = "pre"
	StagePost = "post"
)

type Transformer interface {
	Name() string
	Stage() string
	Transform(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error)
}

// Config names one transformer in a profile.
type Config struct {
	Name  string `yaml:"name"`
	Stage string `yaml:"stage"`
}

type constructor func(stage string) Transformer

var registry = map[string]constructor{
	NamePattern:    func(stage string) Transformer { return &patternTransformer{stage: stage} },
	NameProperNoun: func(stage string) Transformer { return &properNounTransformer{stage: stage} },
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

func New(cfg Config) (Transformer, error) {
	ctor, ok := registry[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("transformer: unknown name %q", cfg.Name)
	}
	stage := cfg.Stage
	if stage == "" {
		stage = StagePost
	}
	if stage != StagePre && stage != StagePost {
		return nil, fmt.Errorf("transformer %s: unknown stage %q", cfg.Name, cfg.Stage)
	}
	return ctor(stage), nil
}

// Chain runs transformers in declared order.
type Chain struct {
	items []Transformer
}

func NewChain(items ...Transformer) *Chain {
	return &Chain{items: items}
}

func BuildChain(cfgs []Config) (*Chain, error) {
	items := make([]Transformer, 0, len(cfgs))
	for _, c := range cfgs {
		t, err := New(c)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return NewChain(items...), nil
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Apply runs every transformer registered for stage. A transformer must
// return exactly one chunk per input; entities it reports are merged into
// what earlier transformers found and never remove existing values.
func (c *Chain) Apply(ctx context.Context, stage string, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	if c == nil {
		return chunks, nil
	}
	cur := chunks
	for _, t := range c.items {
		if t.Stage() != stage {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := make([]chunk.Chunk, len(cur))
		for i := range cur {
			in[i] = cur[i].Clone()
		}
		out, err := t.Transform(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("transformer %s: %w", t.Name(), err)
		}
		if len(out) != len(cur) {
			return nil, fmt.Errorf("transformer %s: returned %d chunks for %d inputs", t.Name(), len(out), len(cur))
		}
		for i := range out {
			out[i].Entities = MergeEntities(cur[i].Entities, out[i].Entities)
		}
		cur = out
	}
	return cur, nil
}

// MergeEntities unions b into a, keeping first-seen order per label.
func MergeEntities(a, b map[string][]string) map[string][]string {
	if len(a) == 0 && len(b) == 0 {
		return a
	}
	out := make(map[string][]string, len(a)+len(b))
	for _, src := range []map[string][]string{a, b} {
		for label, vals := range src {
			for _, v := range vals {
				out[label] = appendUnique(out[label], v)
			}
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
