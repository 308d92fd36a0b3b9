package chunker

import (
	"context"
	"regexp"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
)

const (
	// SplitterPunctuation ends a sentence at . ! ? and their CJK forms.
	SplitterPunctuation = "punctuation"
	// SplitterNewline treats each non-empty line as a sentence.
	SplitterNewline = "newline"
)

var sentenceEnd = regexp.MustCompile(`[^.!?。！？\n]+(?:[.!?。！？]+|\n+|$)`)

// SplitSentences splits text with the named strategy, dropping blank
// sentences.
func SplitSentences(text, strategy string) []string {
	var raw []string
	if strategy == SplitterNewline {
		raw = strings.Split(text, "\n")
	} else {
		raw = sentenceEnd.FindAllString(text, -1)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type sentenceChunker struct {
	cfg   Config
	count tokens.Counter
}

func newSentence(cfg Config, _ Encoder) (Chunker, error) {
	return &sentenceChunker{cfg: cfg, count: cfg.counter()}, nil
}

func (s *sentenceChunker) Chunk(ctx context.Context, texts []string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = groupSentences(SplitSentences(t, s.cfg.Splitter), s.count, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	}
	return out, nil
}

// groupSentences packs sentences greedily into chunks of at most size
// tokens. Each new chunk starts with the trailing sentences of the previous
// one whose combined size fits in overlap. A single sentence larger than size
// becomes its own chunk.
func groupSentences(sentences []string, count tokens.Counter, size, overlap int) []string {
	var (
		out     []string
		cur     []string
		curSize int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, strings.Join(cur, " "))
		var carry []string
		carried := 0
		for j := len(cur) - 1; j >= 0 && overlap > 0; j-- {
			n := count(cur[j])
			if carried+n > overlap {
				break
			}
			carry = append([]string{cur[j]}, carry...)
			carried += n
		}
		cur, curSize = carry, carried
	}
	for _, sent := range sentences {
		n := count(sent)
		if curSize+n > size && len(cur) > 0 {
			flush()
			if curSize+n > size {
				cur, curSize = nil, 0
			}
		}
		cur = append(cur, sent)
		curSize += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
