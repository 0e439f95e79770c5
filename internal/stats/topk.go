package stats

import (
	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// Direction selects which extreme ranks first.
type Direction int

const (
	// Highest ranks the largest value first (hottest).
	Highest Direction = iota
	// Lowest ranks the smallest value first (coldest).
	Lowest
)

func (d Direction) String() string {
	if d == Lowest {
		return "min"
	}
	return "max"
}

// TopK keeps the k best groups seen so far, one extremal value per group.
//
// Memory is O(k) regardless of how many groups pass through. A group evicted
// from the list can only re-enter with a value that beats the current k-th
// entry, and the k-th entry only improves, so the final list equals the top
// k of the full per-group extremum table.
type TopK struct {
	k       int
	dir     Direction
	entries []domain.Extremum // best first
}

// NewTopK returns an empty selector.
func NewTopK(k int, dir Direction) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, dir: dir, entries: make([]domain.Extremum, 0, k)}
}

// better reports whether a ranks ahead of b: by value in the selector's
// direction, then by ascending key.
func (t *TopK) better(a, b domain.Extremum) bool {
	if a.Value != b.Value {
		if t.dir == Lowest {
			return a.Value < b.Value
		}
		return a.Value > b.Value
	}
	return a.Key.Less(b.Key)
}

// Offer feeds one value for a group.
func (t *TopK) Offer(key domain.GroupKey, value int) {
	if t.k == 0 {
		return
	}
	cand := domain.Extremum{Key: key, Value: value}

	for i := range t.entries {
		if t.entries[i].Key != key {
			continue
		}
		if !t.better(cand, t.entries[i]) {
			return
		}
		t.entries[i].Value = value
		t.promote(i)
		return
	}

	if len(t.entries) < t.k {
		t.entries = append(t.entries, cand)
		t.promote(len(t.entries) - 1)
		return
	}
	last := len(t.entries) - 1
	if t.better(cand, t.entries[last]) {
		t.entries[last] = cand
		t.promote(last)
	}
}

// promote moves entry i towards the front until the list is ordered again.
func (t *TopK) promote(i int) {
	for i > 0 && t.better(t.entries[i], t.entries[i-1]) {
		t.entries[i], t.entries[i-1] = t.entries[i-1], t.entries[i]
		i--
	}
}

// Result returns a copy of the ranked list.
func (t *TopK) Result() []domain.Extremum {
	out := make([]domain.Extremum, len(t.entries))
	copy(out, t.entries)
	return out
}

// SelectTopK ranks the groups of one element's quality-passed observations.
// An empty input yields an empty list.
func SelectTopK(obs []domain.Observation, el domain.Element, key domain.KeyFunc, dir Direction, k int) []domain.Extremum {
	t := NewTopK(k, dir)
	for _, o := range obs {
		if o.Element == el && domain.Keep(o) {
			t.Offer(key(o), o.Value)
		}
	}
	return t.Result()
}

// MergeTopK re-ranks the union of per-shard top-k lists. Each shard's list
// holds every group of the global top k that the shard can vouch for, so
// the union contains the global answer.
func MergeTopK(k int, dir Direction, lists ...[]domain.Extremum) []domain.Extremum {
	t := NewTopK(k, dir)
	for _, list := range lists {
		for _, e := range list {
			t.Offer(e.Key, e.Value)
		}
	}
	return t.Result()
}
