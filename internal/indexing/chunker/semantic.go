package chunker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
)

type semanticChunker struct {
	cfg   Config
	enc   Encoder
	count tokens.Counter
}

func newSemantic(cfg Config, enc Encoder) (Chunker, error) {
	if enc == nil {
		return nil, errors.New("chunker: semantic technique needs an encoder")
	}
	return &semanticChunker{cfg: cfg, enc: enc, count: cfg.counter()}, nil
}

func (s *semanticChunker) Chunk(ctx context.Context, texts []string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, t := range texts {
		sentences := SplitSentences(t, s.cfg.Splitter)
		if len(sentences) <= 1 {
			out[i] = sentences
			continue
		}
		vecs, err := s.enc.Encode(ctx, sentences)
		if err != nil {
			return nil, fmt.Errorf("semantic encode block %d: %w", i, err)
		}
		if len(vecs) != len(sentences) {
			return nil, fmt.Errorf("semantic encode block %d: want %d vectors got %d", i, len(sentences), len(vecs))
		}
		out[i] = s.group(sentences, vecs)
	}
	return out, nil
}

// group cuts between adjacent sentences whose cosine distance exceeds the
// threshold. Chunks never grow past MaxTokens and a cut is skipped while the
// running chunk is still under MinTokens.
func (s *semanticChunker) group(sentences []string, vecs [][]float32) []string {
	dist := make([]float64, len(sentences)-1)
	for i := range dist {
		dist[i] = 1 - cosine(vecs[i], vecs[i+1])
	}
	threshold := s.cfg.Threshold
	if s.cfg.DynamicThreshold {
		threshold = percentile(dist, s.cfg.Percentile)
	}

	var (
		out     []string
		cur     []string
		curSize int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
		}
		cur, curSize = nil, 0
	}
	for i, sent := range sentences {
		n := s.count(sent)
		if len(cur) > 0 {
			breakHere := dist[i-1] > threshold && curSize >= s.cfg.MinTokens
			if breakHere || curSize+n > s.cfg.MaxTokens {
				flush()
			}
		}
		cur = append(cur, sent)
		curSize += n
	}
	flush()
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
