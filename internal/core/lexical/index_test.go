package lexical

import (
	"strings"
	"testing"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

func testCorpus() []domain.Chunk {
	return []domain.Chunk{
		{ID: "c-1", Text: "Arias (2020) describes the survey methodology in detail.", SourceFile: "arias.pdf", ChunkIndex: 0},
		{ID: "c-2", Text: "The research methodology chapter explains sampling and analysis.", SourceFile: "methods.pdf", ChunkIndex: 0},
		{ID: "c-3", Text: "Completely unrelated text about cooking pasta at home.", SourceFile: "recipes.pdf", ChunkIndex: 0},
	}
}

func TestSearchRanksExactTermsFirst(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())

	hits := ix.Search("Arias 2020", 0)
	if len(hits) == 0 {
		t.Fatalf("expected hits")
	}
	if hits[0].ChunkID != "c-1" {
		t.Fatalf("expected c-1 first, got %s", hits[0].ChunkID)
	}
	for _, h := range hits {
		if h.ChunkID == "c-3" {
			t.Fatalf("chunk without query terms must be excluded, got hit %+v", h)
		}
		if h.Score <= 0 {
			t.Fatalf("expected positive score, got %f", h.Score)
		}
	}
}

func TestSearchExcludesZeroOverlapDocuments(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())

	hits := ix.Search("methodology", 0)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	ix := NewIndex(nil, DefaultParams())
	if hits := ix.Search("anything", 5); len(hits) != 0 {
		t.Fatalf("expected no hits on empty corpus, got %d", len(hits))
	}
	if ix.Len() != 0 {
		t.Fatalf("expected empty index, got %d docs", ix.Len())
	}
}

func TestSearchNoiseQuery(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())
	if hits := ix.Search("!!! ---", 5); len(hits) != 0 {
		t.Fatalf("expected no hits for punctuation-only query, got %d", len(hits))
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())
	hits := ix.Search("methodology analysis survey", 1)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit with limit 1, got %d", len(hits))
	}
}

func TestSearchDeterministicOrder(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "b", Text: "twin copy"},
		{ID: "a", Text: "twin copy"},
	}
	ix := NewIndex(chunks, DefaultParams())
	hits := ix.Search("twin", 0)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != "a" || hits[1].ChunkID != "b" {
		t.Fatalf("expected tie broken by chunk id, got %s then %s", hits[0].ChunkID, hits[1].ChunkID)
	}
}

func TestChunkHydration(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())
	chunk, ok := ix.Chunk("c-2")
	if !ok {
		t.Fatalf("expected chunk c-2")
	}
	if chunk.SourceFile != "methods.pdf" {
		t.Fatalf("expected methods.pdf, got %s", chunk.SourceFile)
	}
	if _, ok := ix.Chunk("missing"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestStats(t *testing.T) {
	ix := NewIndex(testCorpus(), DefaultParams())
	stats := ix.Stats()
	if stats.Documents != 3 {
		t.Fatalf("expected 3 documents, got %d", stats.Documents)
	}
	if stats.Terms == 0 {
		t.Fatalf("expected non-zero term count")
	}
	if stats.AvgDocLength <= 0 {
		t.Fatalf("expected positive avg doc length, got %f", stats.AvgDocLength)
	}
}

func TestTokenizeNormalization(t *testing.T) {
	tokens := Tokenize("Arias, (2020): survey-methodology! a " + strings.Repeat("x", 21))
	want := map[string]bool{"arias": true, "2020": true, "survey": true, "methodology": true}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Fatalf("unexpected token %q in %v", tok, tokens)
		}
	}
}

func TestTokenizeLengthBounds(t *testing.T) {
	twenty := strings.Repeat("y", 20)
	tokens := Tokenize("a " + twenty + " " + twenty + "z")
	if len(tokens) != 1 || tokens[0] != twenty {
		t.Fatalf("expected only the 20-rune token, got %v", tokens)
	}
}
