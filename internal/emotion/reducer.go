package emotion

const DefaultDivisor = 3

type Policy struct {
	// Divisor applied to the neutral count before comparing it with the
	// runner-up. Neutral wins only if count/Divisor exceeds the runner-up.
	Divisor int
	// SuppressNeutral disables the divisor rule when false, leaving a plain
	// majority vote.
	SuppressNeutral bool
}

func DefaultPolicy() Policy {
	return Policy{Divisor: DefaultDivisor, SuppressNeutral: true}
}

// Reducer turns one window's tally into a single label. It owns the tally
// and resets it after every reduction.
type Reducer struct {
	policy Policy
	tally  *Tally
}

func NewReducer(policy Policy) *Reducer {
	if policy.Divisor < 1 {
		policy.Divisor = DefaultDivisor
	}
	return &Reducer{policy: policy, tally: NewTally()}
}

func (r *Reducer) Record(label Label) {
	r.tally.Record(label)
}

func (r *Reducer) Tally() *Tally {
	return r.tally
}

// Reduce emits the window's representative label and the counts it was
// computed from, then resets the tally.
func (r *Reducer) Reduce() (Label, []Count) {
	counts := r.tally.Snapshot()
	label := r.policy.Decide(r.tally.Ranked())
	r.tally.Reset()
	return label, counts
}

// Decide applies the policy to counts already ranked by descending count.
func (p Policy) Decide(ranked []Count) Label {
	if len(ranked) == 0 {
		return None
	}
	top := ranked[0]
	if top.Label != Neutral || len(ranked) == 1 {
		return top.Label
	}
	second := ranked[1]
	if !p.SuppressNeutral {
		return top.Label
	}

	divisor := p.Divisor
	if divisor < 1 {
		divisor = DefaultDivisor
	}
	if top.Count/divisor <= second.Count {
		return second.Label
	}
	return top.Label
}
