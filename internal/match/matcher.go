package match

import (
	"errors"
	"math"

	"github.com/google/uuid"
)

// ErrInvalidEmbedding is returned when the probe and a representative have
// different dimensions. This is a hard failure, distinct from "no match".
var ErrInvalidEmbedding = errors.New("embedding dimension mismatch")

// Representative is one person's reference embedding. Callers pass the slice
// ordered by person creation time.
type Representative struct {
	PersonID  uuid.UUID
	Embedding []float32
}

// Result of a BestMatch call. PersonID and Distance are only meaningful when
// Matched is true.
type Result struct {
	PersonID uuid.UUID
	Distance float64
	Matched  bool
}

// BestMatch finds the representative closest to probe. A match requires the
// distance to be within tolerance. Ties go to the earliest-created person,
// which the strict comparison guarantees given the ordering of reps.
func BestMatch(probe []float32, reps []Representative, tolerance float64) (Result, error) {
	best := Result{Distance: math.MaxFloat64}

	for _, rep := range reps {
		d, err := Euclidean(probe, rep.Embedding)
		if err != nil {
			return Result{}, err
		}
		if d < best.Distance {
			best.Distance = d
			best.PersonID = rep.PersonID
		}
	}

	if best.PersonID != uuid.Nil && best.Distance <= tolerance {
		best.Matched = true
		return best, nil
	}
	return Result{}, nil
}

// Euclidean returns the L2 distance between two embeddings.
func Euclidean(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrInvalidEmbedding
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
