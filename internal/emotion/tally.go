package emotion

import "sort"

type Count struct {
	Label Label `json:"label"`
	Count int   `json:"count"`
}

// Tally counts votes for one window. Snapshot order is the order in which
// labels were first recorded, which is also the tie-break order.
type Tally struct {
	order  []Label
	counts map[Label]int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[Label]int)}
}

func (t *Tally) Record(label Label) {
	if _, seen := t.counts[label]; !seen {
		t.order = append(t.order, label)
	}
	t.counts[label]++
}

func (t *Tally) Snapshot() []Count {
	out := make([]Count, 0, len(t.order))
	for _, l := range t.order {
		out = append(out, Count{Label: l, Count: t.counts[l]})
	}
	return out
}

func (t *Tally) Reset() {
	t.order = t.order[:0]
	clear(t.counts)
}

func (t *Tally) Total() int {
	total := 0
	for _, c := range t.counts {
		total += c
	}
	return total
}

func (t *Tally) Empty() bool {
	return len(t.order) == 0
}

// Ranked returns counts by descending count, ties kept in first-recorded
// order.
func (t *Tally) Ranked() []Count {
	ranked := t.Snapshot()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}
