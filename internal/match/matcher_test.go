package match

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func embed(vals ...float32) []float32 {
	e := make([]float32, 128)
	copy(e, vals)
	return e
}

func TestBestMatch(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	tests := []struct {
		name      string
		probe     []float32
		reps      []Representative
		tolerance float64
		wantMatch bool
		wantID    uuid.UUID
	}{
		{
			name:      "empty set",
			probe:     embed(1),
			reps:      nil,
			tolerance: 0.6,
			wantMatch: false,
		},
		{
			name:  "within tolerance",
			probe: embed(0.5),
			reps: []Representative{
				{PersonID: alice, Embedding: embed(0.2)},
			},
			tolerance: 0.6,
			wantMatch: true,
			wantID:    alice,
		},
		{
			name:  "beyond tolerance",
			probe: embed(2),
			reps: []Representative{
				{PersonID: alice, Embedding: embed(0)},
			},
			tolerance: 0.6,
			wantMatch: false,
		},
		{
			name:  "exactly at tolerance matches",
			probe: embed(0.5),
			reps: []Representative{
				{PersonID: alice, Embedding: embed(0)},
			},
			tolerance: 0.5,
			wantMatch: true,
			wantID:    alice,
		},
		{
			name:  "closest wins",
			probe: embed(0.3),
			reps: []Representative{
				{PersonID: alice, Embedding: embed(0)},
				{PersonID: bob, Embedding: embed(0.35)},
			},
			tolerance: 0.6,
			wantMatch: true,
			wantID:    bob,
		},
		{
			name:  "tie goes to earliest created",
			probe: embed(0.5),
			reps: []Representative{
				{PersonID: alice, Embedding: embed(0.25)},
				{PersonID: bob, Embedding: embed(0.75)},
			},
			tolerance: 0.6,
			wantMatch: true,
			wantID:    alice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestMatch(tt.probe, tt.reps, tt.tolerance)
			if err != nil {
				t.Fatalf("BestMatch() error = %v", err)
			}
			if got.Matched != tt.wantMatch {
				t.Fatalf("Matched = %v, want %v", got.Matched, tt.wantMatch)
			}
			if tt.wantMatch && got.PersonID != tt.wantID {
				t.Errorf("PersonID = %v, want %v", got.PersonID, tt.wantID)
			}
		})
	}
}

func TestBestMatchDimensionMismatch(t *testing.T) {
	reps := []Representative{
		{PersonID: uuid.New(), Embedding: make([]float32, 64)},
	}
	_, err := BestMatch(embed(1), reps, 0.6)
	if !errors.Is(err, ErrInvalidEmbedding) {
		t.Fatalf("err = %v, want ErrInvalidEmbedding", err)
	}
}

func TestEuclidean(t *testing.T) {
	a := []float32{3, 0}
	b := []float32{0, 4}
	d, err := Euclidean(a, b)
	if err != nil {
		t.Fatalf("Euclidean() error = %v", err)
	}
	if math.Abs(d-5) > 1e-9 {
		t.Errorf("distance = %v, want 5", d)
	}
}
