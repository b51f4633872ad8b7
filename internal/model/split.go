package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split partitions n row indices into train and test sets. The permutation
// is seeded, the test set holds ceil(n*testFraction) rows and both sides
// keep at least one row.
func Split(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrTooFewRows, n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", testFraction)
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	nTest = min(max(nTest, 1), n-1)

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}
