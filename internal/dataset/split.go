package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

// Split holds the train/validation/test partition of a dataset.
type Split struct {
	Train      []Record
	Validation []Record
	Test       []Record
}

// ErrBadFraction is returned when split fractions do not leave room for training data.
var ErrBadFraction = errors.New("invalid split fractions")

// StratifiedSplit partitions records preserving the class balance of the
// target in every partition. testSize and valSize are fractions of the whole
// dataset; shuffling is seeded for reproducible experiments.
func StratifiedSplit(records []Record, testSize, valSize float64, seed int64) (Split, error) {
	if testSize <= 0 || valSize <= 0 || testSize+valSize >= 1 {
		return Split{}, fmt.Errorf("%w: test=%v validation=%v", ErrBadFraction, testSize, valSize)
	}

	rng := rand.New(rand.NewSource(seed))

	byClass := map[int][]Record{}
	for _, r := range records {
		byClass[r.Label] = append(byClass[r.Label], r)
	}

	var split Split
	for _, class := range []int{0, 1} {
		group := byClass[class]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		nTest := int(float64(len(group)) * testSize)
		nVal := int(float64(len(group)) * valSize)
		if nTest == 0 || nVal == 0 || nTest+nVal >= len(group) {
			return Split{}, fmt.Errorf("%w: class %d has only %d examples", ErrBadFraction, class, len(group))
		}

		split.Test = append(split.Test, group[:nTest]...)
		split.Validation = append(split.Validation, group[nTest:nTest+nVal]...)
		split.Train = append(split.Train, group[nTest+nVal:]...)
	}

	// Interleave classes so mini-batch training never sees long single-class runs.
	rng.Shuffle(len(split.Train), func(i, j int) {
		split.Train[i], split.Train[j] = split.Train[j], split.Train[i]
	})

	return split, nil
}
