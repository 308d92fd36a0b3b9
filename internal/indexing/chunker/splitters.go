package chunker

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// splitterChunker adapts a langchaingo text splitter.
type splitterChunker struct {
	name     string
	splitter textsplitter.TextSplitter
}

func (s splitterChunker) Chunk(ctx context.Context, texts []string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parts, err := s.splitter.SplitText(t)
		if err != nil {
			return nil, fmt.Errorf("%s split block %d: %w", s.name, i, err)
		}
		out[i] = parts
	}
	return out, nil
}

func newRecursive(cfg Config, _ Encoder) (Chunker, error) {
	return splitterChunker{
		name: TechniqueRecursive,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", "。", ". ", " ", ""}),
		),
	}, nil
}

func newToken(cfg Config, _ Encoder) (Chunker, error) {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
	}
	if cfg.Encoding != "" {
		opts = append(opts, textsplitter.WithEncodingName(cfg.Encoding))
	}
	return splitterChunker{name: TechniqueToken, splitter: textsplitter.NewTokenSplitter(opts...)}, nil
}

func newMarkdown(cfg Config, _ Encoder) (Chunker, error) {
	return splitterChunker{
		name: TechniqueMarkdown,
		splitter: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}, nil
}
