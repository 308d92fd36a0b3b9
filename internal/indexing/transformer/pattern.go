package transformer

import (
	"context"
	"regexp"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
)

const NamePattern = "pattern"

var patternLabels = []struct {
	label string
	re    *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}\b`)},
	{"URL", regexp.MustCompile(`(?i)\bhttps?://[^\s<>"')\]]+`)},
	{"PHONE", regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`)},
	{"DATE", regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})\b`)},
	{"MONEY", regexp.MustCompile(`(?:[$€£¥]\s?\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|JPY|dollars|euros)\b)`)},
	{"PERCENT", regexp.MustCompile(`\b\d+(?:\.\d+)?\s?%`)},
}

type patternTransformer struct {
	stage string
}

func (p *patternTransformer) Name() string  { return NamePattern }
func (p *patternTransformer) Stage() string { return p.stage }

func (p *patternTransformer) Transform(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := PatternEntities(chunks[i].Content)
		if len(found) > 0 {
			chunks[i].Entities = MergeEntities(chunks[i].Entities, found)
		}
	}
	return chunks, nil
}

// PatternEntities returns regex matches grouped by label, trimmed of
// trailing punctuation.
func PatternEntities(text string) map[string][]string {
	out := map[string][]string{}
	for _, p := range patternLabels {
		for _, m := range p.re.FindAllString(text, -1) {
			m = strings.TrimRight(strings.TrimSpace(m), ".,;:")
			if m == "" {
				continue
			}
			out[p.label] = appendUnique(out[p.label], m)
		}
	}
	return out
}
