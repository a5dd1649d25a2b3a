package memory

import (
	"sort"

	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/textutils"
)

// keywordRank is the degraded retrieval path used when the embedding backend
// is unavailable: rank stored exchanges by term overlap with the query.
// Zero results is a valid outcome, not an error.
func keywordRank(exchanges []*entity.Exchange, query string, limit int, exclude map[uint64]struct{}) []Scored {
	queryTerms := textutils.TermSet(query)
	if len(queryTerms) == 0 {
		return nil
	}

	var results []Scored
	for _, ex := range exchanges {
		if _, skip := exclude[ex.Seq]; skip {
			continue
		}
		score := textutils.Jaccard(query, ex.Text)
		if score <= 0 {
			continue
		}
		results = append(results, Scored{Exchange: ex, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// jaccardRepetition is the lexical stand-in for embedding-based repetition
// detection. 0.6 lexical overlap approximates the 0.85 cosine bar.
func jaccardRepetition(candidate, stored string) bool {
	return textutils.Jaccard(candidate, stored) > 0.6
}
