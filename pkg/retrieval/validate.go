package retrieval

import (
	"fmt"
	"math"
)

// ValidateHits fails on the first hit with missing chunk text or a non-finite score.
// Whitespace-only text is present and passes through verbatim.
// Skipping bad hits would silently change the average score and block count.
func ValidateHits(hits []VectorHit) error {
	for i, h := range hits {
		if h.Chunk == "" {
			return fmt.Errorf("vector hit %d: missing chunk: %w", i, ErrMalformedHit)
		}
		if math.IsNaN(h.Score) || math.IsInf(h.Score, 0) {
			return fmt.Errorf("vector hit %d: score %v is not finite: %w", i, h.Score, ErrMalformedHit)
		}
	}
	return nil
}

// ValidateTriples fails on the first triple with an empty source, relation or target.
func ValidateTriples(triples []Triple) error {
	for i, t := range triples {
		switch {
		case t.Source == "":
			return fmt.Errorf("triple %d: missing source: %w", i, ErrMalformedHit)
		case t.Relation == "":
			return fmt.Errorf("triple %d: missing relation: %w", i, ErrMalformedHit)
		case t.Target == "":
			return fmt.Errorf("triple %d: missing target: %w", i, ErrMalformedHit)
		}
	}
	return nil
}
