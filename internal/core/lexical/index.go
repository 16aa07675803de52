package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

const (
	minTokenLen = 2
	maxTokenLen = 20
)

type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

func (p Params) normalize() Params {
	if p.K1 <= 0 {
		p.K1 = 1.5
	}
	if p.B < 0 || p.B > 1 {
		p.B = 0.75
	}
	return p
}

type posting struct {
	doc  int
	freq int
}

type document struct {
	chunk  domain.Chunk
	length int
}

// Index is an immutable BM25 inverted index over a chunk corpus. It is
// built once from the full corpus and replaced wholesale on reindex;
// concurrent readers share one snapshot and never observe mutation.
type Index struct {
	params   Params
	docs     []document
	byID     map[string]int
	postings map[string][]posting
	avgLen   float64
}

// Hit is one scored lexical match.
type Hit struct {
	ChunkID string
	Score   float64
}

// NewIndex tokenizes every chunk and builds the inverted index plus the
// per-document lengths BM25 needs. An empty corpus yields a valid index
// that matches nothing.
func NewIndex(chunks []domain.Chunk, params Params) *Index {
	ix := &Index{
		params:   params.normalize(),
		docs:     make([]document, 0, len(chunks)),
		byID:     make(map[string]int, len(chunks)),
		postings: make(map[string][]posting, len(chunks)*8),
	}

	totalLen := 0
	for _, chunk := range chunks {
		tokens := Tokenize(chunk.Text)
		pos := len(ix.docs)
		ix.docs = append(ix.docs, document{chunk: chunk, length: len(tokens)})
		ix.byID[chunk.ID] = pos
		totalLen += len(tokens)

		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		for term, tf := range freq {
			ix.postings[term] = append(ix.postings[term], posting{doc: pos, freq: tf})
		}
	}
	if len(ix.docs) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(ix.docs))
	}
	return ix
}

// Search scores every document sharing at least one query term and
// returns hits sorted by descending score. Documents with zero term
// overlap are excluded rather than scored as zero. limit <= 0 returns
// all matches.
func (ix *Index) Search(query string, limit int) []Hit {
	if len(ix.docs) == 0 {
		return nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	scores := make(map[int]float64, 32)
	n := float64(len(ix.docs))
	for _, term := range tokens {
		list, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(len(list))+0.5)/(float64(len(list))+0.5))
		for _, p := range list {
			tf := float64(p.freq)
			norm := ix.params.K1 * (1 - ix.params.B + ix.params.B*float64(ix.docs[p.doc].length)/ix.avgLen)
			scores[p.doc] += idf * tf * (ix.params.K1 + 1) / (tf + norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, Hit{ChunkID: ix.docs[doc].chunk.ID, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Chunk returns the stored chunk for a hit, for result hydration.
func (ix *Index) Chunk(id string) (domain.Chunk, bool) {
	pos, ok := ix.byID[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return ix.docs[pos].chunk, true
}

func (ix *Index) Len() int {
	return len(ix.docs)
}

func (ix *Index) Stats() domain.LexicalStats {
	return domain.LexicalStats{
		Documents:    len(ix.docs),
		Terms:        len(ix.postings),
		AvgDocLength: ix.avgLen,
	}
}

// Tokenize lowercases the text, treats every non-alphanumeric rune as a
// separator and keeps tokens of 2 to 20 runes. Queries and documents
// must go through the same tokenizer or BM25 term matching breaks.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0, 32)
	var b strings.Builder
	runeLen := 0
	flush := func() {
		if runeLen >= minTokenLen && runeLen <= maxTokenLen {
			out = append(out, b.String())
		}
		b.Reset()
		runeLen = 0
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			runeLen++
			continue
		}
		if runeLen > 0 {
			flush()
		}
	}
	if runeLen > 0 {
		flush()
	}
	return out
}
