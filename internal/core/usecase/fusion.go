package usecase

import (
	"sort"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

// FusionWeights is the weighted-sum blend applied to the two retrieval
// signals. Semantic is weighted higher by default because embeddings
// generalize over paraphrase; the lexical term catches exact matches
// (names, years, citations) embeddings under-weight.
type FusionWeights struct {
	Semantic float64
	Lexical  float64
}

// fuseCandidatesWeighted merges the two candidate lists by chunk id.
// Semantic entries contribute semantic_score*W_sem, lexical entries add
// lexical_score*W_lex to an existing entry or insert a new one with a
// zero semantic score. Output is sorted by descending hybrid score.
func fuseCandidatesWeighted(semantic, lexical []domain.CandidateResult, weights FusionWeights) []domain.CandidateResult {
	acc := make(map[string]domain.CandidateResult, len(semantic)+len(lexical))

	for _, c := range semantic {
		c.HybridScore = c.SemanticScore * weights.Semantic
		acc[c.ChunkID] = c
	}
	for _, c := range lexical {
		if existing, ok := acc[c.ChunkID]; ok {
			existing.LexicalScore = c.LexicalScore
			existing.HybridScore += c.LexicalScore * weights.Lexical
			acc[c.ChunkID] = preferRicherCandidate(existing, c)
			continue
		}
		c.SemanticScore = 0
		c.HybridScore = c.LexicalScore * weights.Lexical
		acc[c.ChunkID] = c
	}

	out := make([]domain.CandidateResult, 0, len(acc))
	for _, c := range acc {
		out = append(out, c)
	}
	sortCandidatesByHybrid(out)
	return out
}

// fuseCandidatesRRF is the rank-based alternative: every list position
// contributes 1/(k+rank+1) regardless of raw score scale.
func fuseCandidatesRRF(semantic, lexical []domain.CandidateResult, rrfK int) []domain.CandidateResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]domain.CandidateResult, len(semantic)+len(lexical))
	addList := func(candidates []domain.CandidateResult) {
		for rank, c := range candidates {
			contribution := 1.0 / float64(rrfK+rank+1)
			if existing, ok := acc[c.ChunkID]; ok {
				existing.HybridScore += contribution
				acc[c.ChunkID] = preferRicherCandidate(existing, c)
				continue
			}
			c.HybridScore = contribution
			acc[c.ChunkID] = c
		}
	}

	addList(semantic)
	addList(lexical)

	out := make([]domain.CandidateResult, 0, len(acc))
	for _, c := range acc {
		out = append(out, c)
	}
	sortCandidatesByHybrid(out)
	return out
}

// filterCandidates drops near-zero matches so the reranker never wastes
// model calls on them. The comparison is strict: a score equal to the
// threshold is discarded with the rest.
func filterCandidates(candidates []domain.CandidateResult, minScore float64) []domain.CandidateResult {
	out := candidates[:0]
	for _, c := range candidates {
		if c.HybridScore > minScore {
			out = append(out, c)
		}
	}
	return out
}

func trimCandidates(candidates []domain.CandidateResult, limit int) []domain.CandidateResult {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func sortCandidatesByHybrid(candidates []domain.CandidateResult) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].HybridScore != candidates[j].HybridScore {
			return candidates[i].HybridScore > candidates[j].HybridScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}

// preferRicherCandidate fills payload fields one retrieval path lacked.
// Scores are left to the fusion loops; only text and provenance merge.
func preferRicherCandidate(current, candidate domain.CandidateResult) domain.CandidateResult {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.SourceFile == "" && candidate.SourceFile != "" {
		current.SourceFile = candidate.SourceFile
	}
	if current.Metadata == nil && candidate.Metadata != nil {
		current.Metadata = candidate.Metadata
	}
	if current.SemanticScore == 0 && candidate.SemanticScore != 0 {
		current.SemanticScore = candidate.SemanticScore
	}
	if current.LexicalScore == 0 && candidate.LexicalScore != 0 {
		current.LexicalScore = candidate.LexicalScore
	}
	return current
}
