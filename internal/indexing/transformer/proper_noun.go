package transformer

import (
	"context"
	"strings"
	"unicode"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
)

const NameProperNoun = "proper_noun"

var (
	personTitles = map[string]bool{
		"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sir": true, "madam": true,
	}
	orgSuffixes = map[string]bool{
		"inc": true, "corp": true, "corporation": true, "ltd": true, "llc": true, "gmbh": true,
		"company": true, "co": true, "group": true, "university": true, "institute": true,
		"foundation": true, "bank": true, "agency": true,
	}
	locationCues = map[string]bool{
		"in": true, "at": true, "from": true, "near": true, "to": true,
	}
	// Capitalised words that start sentences too often to be names on their own.
	stopCaps = map[string]bool{
		"the": true, "a": true, "an": true, "this": true, "that": true, "these": true, "those": true,
		"it": true, "we": true, "i": true, "he": true, "she": true, "they": true, "you": true,
		"in": true, "on": true, "at": true, "for": true, "and": true, "but": true, "or": true,
		"if": true, "when": true, "while": true, "our": true, "his": true, "her": true, "their": true,
	}
)

type properNounTransformer struct {
	stage string
}

func (p *properNounTransformer) Name() string  { return NameProperNoun }
func (p *properNounTransformer) Stage() string { return p.stage }

func (p *properNounTransformer) Transform(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := ProperNounEntities(chunks[i].Content)
		if len(found) > 0 {
			chunks[i].Entities = MergeEntities(chunks[i].Entities, found)
		}
	}
	return chunks, nil
}

type word struct {
	text  string
	clean string
	// ends reports trailing sentence punctuation.
	ends bool
}

func words(text string) []word {
	fields := strings.Fields(text)
	out := make([]word, 0, len(fields))
	for _, f := range fields {
		clean := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&' && r != '-' && r != '\''
		})
		ends := strings.HasSuffix(f, ".") || strings.HasSuffix(f, "!") || strings.HasSuffix(f, "?") ||
			strings.HasSuffix(f, ",") || strings.HasSuffix(f, ";") || strings.HasSuffix(f, ":")
		out = append(out, word{text: f, clean: clean, ends: ends})
	}
	return out
}

func capitalised(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// ProperNounEntities groups runs of capitalised words. A run preceded by a
// personal title is a PERSON, a run ending in an organisation suffix is an
// ORG, a run preceded by a locative preposition is a LOCATION. Other runs of
// two or more words are PERSON candidates.
func ProperNounEntities(text string) map[string][]string {
	ws := words(text)
	out := map[string][]string{}
	for i := 0; i < len(ws); {
		if ws[i].clean == "" || !capitalised(ws[i].clean) || stopCaps[strings.ToLower(ws[i].clean)] || personTitles[strings.ToLower(ws[i].clean)] {
			i++
			continue
		}
		j := i
		var run []string
		for j < len(ws) && ws[j].clean != "" && capitalised(ws[j].clean) {
			if j > i && personTitles[strings.ToLower(ws[j].clean)] {
				break
			}
			run = append(run, ws[j].clean)
			j++
			if ws[j-1].ends {
				break
			}
		}
		name := strings.Join(run, " ")
		last := strings.ToLower(run[len(run)-1])
		var prev string
		if i > 0 {
			prev = strings.ToLower(strings.TrimRight(ws[i-1].text, "."))
		}
		switch {
		case personTitles[prev]:
			out["PERSON"] = appendUnique(out["PERSON"], name)
		case orgSuffixes[last] && len(run) > 1:
			out["ORG"] = appendUnique(out["ORG"], name)
		case locationCues[prev]:
			out["LOCATION"] = appendUnique(out["LOCATION"], name)
		case len(run) > 1:
			out["PERSON"] = appendUnique(out["PERSON"], name)
		}
		i = j
	}
	return out
}
