package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// Subset is a Collection exposing selected indices of another Collection.
type Subset struct {
	c       Collection
	indices []int
}

var _ Collection = (*Subset)(nil)

// Len implements Collection.
func (s *Subset) Len() int { return len(s.indices) }

// Get implements Collection.
func (s *Subset) Get(i int) Sample { return s.c.Get(s.indices[i]) }

func filter(c Collection, keep func(Sample) bool) *Subset {
	s := &Subset{c: c}
	for i := 0; i < c.Len(); i++ {
		if keep(c.Get(i)) {
			s.indices = append(s.indices, i)
		}
	}
	return s
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// TagSubset keeps the samples whose tag is in tags.
func TagSubset(c Collection, tags []string) *Subset {
	want := set(tags)
	return filter(c, func(s Sample) bool { return want[s.Tag()] })
}

// CategorySubset keeps the samples whose category is in categories.
func CategorySubset(c Collection, categories []string) *Subset {
	want := set(categories)
	return filter(c, func(s Sample) bool { return want[s.Category()] })
}

// RandomSubset keeps int(fraction × Len) distinct samples chosen with the
// given seed, in their original order.
func RandomSubset(c Collection, fraction float64, seed int64) (*Subset, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("random subset fraction %v must be in (0,1]", fraction)
	}
	n := c.Len()
	indices := rand.New(rand.NewSource(seed)).Perm(n)[:int(fraction*float64(n))]
	sort.Ints(indices)
	return &Subset{c: c, indices: indices}, nil
}
