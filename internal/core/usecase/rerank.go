package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

// RerankWeights blends the hybrid prior with the cross-encoder signal.
// The hybrid term keeps the cheap fusion ranking as a prior; the model
// term lets the higher-precision pairwise scorer shift the order.
type RerankWeights struct {
	Hybrid float64
	Model  float64
}

// rerankTop scores the top candidates with the cross-encoder and sorts
// them by the blended final score. Reranking is an enhancement: any
// scoring failure falls back to the fused order and reports ok=false.
func (uc *SearchUseCase) rerankTop(ctx context.Context, query string, fused []domain.CandidateResult, topN int) ([]domain.CandidateResult, bool) {
	if len(fused) == 0 {
		return fused, true
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.CandidateResult, topN)
	copy(head, fused[:topN])

	texts := make([]string, len(head))
	for i, c := range head {
		texts[i] = c.Text
	}

	scores, err := uc.scorePairs(ctx, query, texts)
	if err != nil {
		slog.Warn("search_degraded", "stage", "rerank", "query", query, "error", err)
		return fused, false
	}

	for i := range head {
		score := scores[i]
		head[i].RerankScore = &score
	}
	sortCandidatesByFinal(head, uc.params.RerankWeights)

	if topN == len(fused) {
		return head, true
	}
	out := make([]domain.CandidateResult, 0, len(fused))
	out = append(out, head...)
	out = append(out, fused[topN:]...)
	return out, true
}

func (uc *SearchUseCase) scorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if err := uc.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer uc.workers.Release(1)

	scores, err := uc.crossEncoder.ScorePairs(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(texts) {
		return nil, domain.WrapError(domain.ErrTemporary, "rerank",
			fmt.Errorf("scored %d of %d candidates", len(scores), len(texts)))
	}
	return scores, nil
}

// finalScore is the exported ranking signal: the rerank blend when the
// cross-encoder scored the candidate, the plain hybrid score otherwise.
func finalScore(c domain.CandidateResult, weights RerankWeights) float64 {
	if c.RerankScore == nil {
		return c.HybridScore
	}
	return c.HybridScore*weights.Hybrid + *c.RerankScore*weights.Model
}

func sortCandidatesByFinal(candidates []domain.CandidateResult, weights RerankWeights) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := finalScore(candidates[i], weights), finalScore(candidates[j], weights)
		if si != sj {
			return si > sj
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}
