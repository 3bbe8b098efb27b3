// File: internal/compliance/retriever.go
package compliance

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
)

// ErrIndexUnavailable is returned by Retrieve while the retriever is not
// ready. Callers treat it as a signal to continue in degraded mode, not as
// a pipeline failure.
var ErrIndexUnavailable = errors.New("compliance index unavailable")

// queryDescriptionLimit caps how much of a finding's description feeds the
// query. Long scanner output past this point is boilerplate that only
// dilutes the term weights.
const queryDescriptionLimit = 200

// Retriever answers compliance-context lookups from an in-process TF-IDF
// index. It implements schemas.ContextRetriever. The zero value is not
// usable; construct it with New.
type Retriever struct {
	index    *Index
	topK     int
	minScore float64
	logger   *zap.Logger
	ready    bool
}

// New builds a retriever from configuration. Construction never fails: a
// disabled index, an unreadable corpus directory, or an empty corpus yield
// a retriever whose Ready method reports false, and the pipeline degrades
// instead of aborting.
func New(cfg config.RetrieverConfig, logger *zap.Logger) *Retriever {
	r := &Retriever{
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		logger:   logger.Named("compliance"),
	}
	if !cfg.Enabled {
		r.logger.Warn("Compliance retrieval disabled by configuration; policies will be generated without regulatory context.")
		return r
	}

	docs := BuiltinCorpus()
	if cfg.CorpusDir != "" {
		extra, err := LoadDirectory(cfg.CorpusDir)
		if err != nil {
			r.logger.Error("Failed to load corpus directory, retrieval unavailable.",
				zap.String("dir", cfg.CorpusDir), zap.Error(err))
			return r
		}
		docs = append(docs, extra...)
	}
	if len(docs) == 0 {
		r.logger.Error("Compliance corpus is empty, retrieval unavailable.")
		return r
	}

	r.index = NewIndex(docs)
	r.ready = true
	r.logger.Info("Compliance index ready.",
		zap.Int("documents", r.index.Len()),
		zap.Int("top_k", r.topK),
		zap.Float64("min_score", r.minScore))
	return r
}

// Ready reports whether the index can serve queries.
func (r *Retriever) Ready() bool { return r.ready }

// DocumentCount returns the number of indexed chunks, zero when degraded.
func (r *Retriever) DocumentCount() int {
	if r.index == nil {
		return 0
	}
	return r.index.Len()
}

// Retrieve returns up to topK compliance contexts for the record, ordered
// by descending relevance. A topK of zero or less falls back to the
// configured default.
func (r *Retriever) Retrieve(ctx context.Context, rec schemas.VulnerabilityRecord, topK int) ([]schemas.ComplianceContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.ready {
		return nil, ErrIndexUnavailable
	}
	if topK <= 0 {
		topK = r.topK
	}

	query := buildQuery(rec)
	results := r.index.Search(query, topK, r.minScore)

	contexts := make([]schemas.ComplianceContext, 0, len(results))
	for _, res := range results {
		contexts = append(contexts, schemas.ComplianceContext{
			Framework:      res.Doc.Framework,
			ControlID:      res.Doc.ID,
			ControlName:    res.Doc.Name,
			TextSnippet:    res.Doc.Text,
			RelevanceScore: res.Score,
		})
	}

	r.logger.Debug("Retrieved compliance contexts.",
		zap.String("vulnerability_id", rec.ID),
		zap.String("title", rec.Title),
		zap.Int("hits", len(contexts)))
	return contexts, nil
}

// buildQuery concatenates the fields of a finding that carry retrieval
// signal. The description is truncated rune-safely so multi-byte input
// never splits mid-character.
func buildQuery(rec schemas.VulnerabilityRecord) string {
	desc := rec.Description
	if runes := []rune(desc); len(runes) > queryDescriptionLimit {
		desc = string(runes[:queryDescriptionLimit])
	}
	return rec.Title + " " + rec.Category + " " + desc
}
