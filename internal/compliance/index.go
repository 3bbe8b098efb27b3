// File: internal/compliance/index.go
package compliance

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenRE extracts index terms: lowercase alphanumeric runs of two or more
// characters.
var tokenRE = regexp.MustCompile(`[a-z0-9]{2,}`)

// stopwords are dropped during tokenization. The list is short on purpose;
// compliance prose is formulaic and over-filtering hurts recall more than
// the noise words do.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "shall": {}, "that": {}, "the": {},
	"their": {}, "this": {}, "to": {}, "with": {},
}

// Result is one scored index hit.
type Result struct {
	Doc   Document
	Score float64
}

// Index is an immutable TF-IDF vector index over a document corpus. Scoring
// is plain cosine similarity. Given the same corpus and query it always
// returns the same ranking, which keeps retrieval reproducible across runs
// and across processes.
type Index struct {
	docs    []Document
	vectors []map[string]float64
	norms   []float64
	idf     map[string]float64
}

// NewIndex builds the index. Documents are vectorized over their ID, name
// and text so a query mentioning a control id directly still matches.
func NewIndex(docs []Document) *Index {
	idx := &Index{
		docs:    docs,
		vectors: make([]map[string]float64, len(docs)),
		norms:   make([]float64, len(docs)),
		idf:     make(map[string]float64),
	}

	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		tokens := tokenize(doc.ID + " " + doc.Name + " " + doc.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		counts[i] = tf
		for tok := range tf {
			df[tok]++
		}
	}

	// Smoothed IDF keeps terms that appear in every document from zeroing
	// out entirely.
	n := float64(len(docs))
	for tok, freq := range df {
		idx.idf[tok] = math.Log((1+n)/(1+float64(freq))) + 1
	}

	// Weights accumulate in sorted term order. Floating point addition is
	// not associative, so a fixed order is what makes scores reproducible
	// across runs rather than merely close.
	for i, tf := range counts {
		total := 0
		for _, c := range tf {
			total += c
		}
		vec := make(map[string]float64, len(tf))
		var sumSq float64
		for _, tok := range sortedKeys(tf) {
			w := (float64(tf[tok]) / float64(total)) * idx.idf[tok]
			vec[tok] = w
			sumSq += w * w
		}
		idx.vectors[i] = vec
		idx.norms[i] = math.Sqrt(sumSq)
	}
	return idx
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docs) }

// Search returns up to topK documents scoring at least minScore against the
// query, highest score first. Ties are broken by document ID ascending so
// the ranking is total and deterministic.
func (idx *Index) Search(query string, topK int, minScore float64) []Result {
	if topK <= 0 || idx.Len() == 0 {
		return nil
	}

	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	qtf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		qtf[tok]++
	}
	qTerms := sortedKeys(qtf)
	qvec := make(map[string]float64, len(qtf))
	var qSumSq float64
	for _, tok := range qTerms {
		idf, ok := idx.idf[tok]
		if !ok {
			continue
		}
		w := (float64(qtf[tok]) / float64(len(tokens))) * idf
		qvec[tok] = w
		qSumSq += w * w
	}
	if qSumSq == 0 {
		return nil
	}
	qNorm := math.Sqrt(qSumSq)

	results := make([]Result, 0, len(idx.docs))
	for i, dvec := range idx.vectors {
		var dot float64
		for _, tok := range qTerms {
			qw, inQuery := qvec[tok]
			if !inQuery {
				continue
			}
			if dw, ok := dvec[tok]; ok {
				dot += qw * dw
			}
		}
		if dot == 0 || idx.norms[i] == 0 {
			continue
		}
		score := dot / (qNorm * idx.norms[i])
		if score < minScore {
			continue
		}
		results = append(results, Result{Doc: idx.docs[i], Score: score})
	}

	// Stable sort on top of the corpus order makes even a same-id duplicate
	// chunk rank identically from run to run.
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Doc.ID < results[b].Doc.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func tokenize(text string) []string {
	raw := tokenRE.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
