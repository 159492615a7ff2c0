package scraper

import (
	"math"
	"sort"
)

// SourceTag names the signal source a candidate came from
type SourceTag string

const (
	SourceNetworkJSON    SourceTag = "network_json"
	SourceInlineJSON     SourceTag = "inline_json"
	SourceStructuredData SourceTag = "structured_data"
	SourceSelector       SourceTag = "selector"
	SourceVisibleDOM     SourceTag = "visible_dom"
	SourceFulltext       SourceTag = "fulltext"
)

// NoPosition marks a candidate without an offset or coordinate.
const NoPosition = -1

// jsonEpsilon is the tolerance for treating two JSON values as the same price.
const jsonEpsilon = 0.05

// jsonDominance is how many times larger a JSON group must be to lock its value.
const jsonDominance = 3

// Candidate is one numeric value harvested from a page
type Candidate struct {
	Value    float64
	Source   SourceTag
	Position int
}

// Selection is the outcome of fusing a candidate pool
type Selection struct {
	Price  float64
	Locked bool
	Pooled int
}

// Pool accumulates candidates for one extraction attempt. Out-of-range values are
// discarded on entry.
type Pool struct {
	cands []Candidate
}

// Add appends v if it is a plausible price and reports whether it was kept.
func (p *Pool) Add(v float64, src SourceTag, pos int) bool {
	if !inRange(v) {
		return false
	}
	p.cands = append(p.cands, Candidate{Value: v, Source: src, Position: pos})
	return true
}

// Len returns the number of pooled candidates.
func (p *Pool) Len() int { return len(p.cands) }

// Candidates returns a copy of the pool.
func (p *Pool) Candidates() []Candidate {
	return append([]Candidate(nil), p.cands...)
}

// CountBySource tallies candidates per source tag.
func (p *Pool) CountBySource() map[SourceTag]int {
	out := make(map[SourceTag]int)
	for _, c := range p.cands {
		out[c.Source]++
	}
	return out
}

// Fuse collapses the pool into a single price. The pool is scale-normalized first.
// JSON-derived candidates may lock a value outright; otherwise values are grouped at
// two decimals and ranked by occurrence count, then by having a fractional part,
// then by the smaller value.
func Fuse(cands []Candidate) (Selection, bool) {
	if len(cands) == 0 {
		return Selection{}, false
	}

	values := make([]float64, len(cands))
	for i, c := range cands {
		values[i] = c.Value
	}
	normalized := Normalize(values)

	kept := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		c.Value = normalized[i]
		if inRange(c.Value) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return Selection{}, false
	}

	if v, ok := lockJSON(kept); ok {
		return Selection{Price: v, Locked: true, Pooled: len(kept)}, true
	}

	return Selection{Price: rankGroups(kept), Pooled: len(kept)}, true
}

type priceGroup struct {
	value float64
	count int
	first int
}

// lockJSON groups structured-data and inline-JSON values within jsonEpsilon, in
// order of appearance. The earliest group leads unless another group outnumbers it
// jsonDominance times; the leader locks when it outnumbers every other group
// jsonDominance times. A lone group locks only when it is confirmed, either by a
// second JSON occurrence or by a matching candidate from another source.
func lockJSON(cands []Candidate) (float64, bool) {
	var groups []*priceGroup
	for i, c := range cands {
		if !isLockSource(c.Source) {
			continue
		}
		var hit *priceGroup
		for _, g := range groups {
			if math.Abs(g.value-c.Value) <= jsonEpsilon {
				hit = g
				break
			}
		}
		if hit == nil {
			groups = append(groups, &priceGroup{value: c.Value, count: 1, first: i})
			continue
		}
		hit.count++
	}
	switch len(groups) {
	case 0:
		return 0, false
	case 1:
		g := groups[0]
		if g.count < 2 && !confirmedElsewhere(cands, g.value) {
			return 0, false
		}
		return round2(g.value), true
	}

	leader := groups[0]
	for _, g := range groups[1:] {
		if g.count >= jsonDominance*leader.count && g.count > leader.count {
			leader = g
		}
	}
	for _, g := range groups {
		if g == leader {
			continue
		}
		if leader.count < jsonDominance*g.count {
			return 0, false
		}
	}
	return round2(leader.value), true
}

func isLockSource(src SourceTag) bool {
	return src == SourceStructuredData || src == SourceInlineJSON
}

// confirmedElsewhere reports whether a non-locking source also saw v.
func confirmedElsewhere(cands []Candidate, v float64) bool {
	for _, c := range cands {
		if !isLockSource(c.Source) && math.Abs(c.Value-v) <= jsonEpsilon {
			return true
		}
	}
	return false
}

// rankGroups implements the general frequency vote.
func rankGroups(cands []Candidate) float64 {
	index := make(map[string]*priceGroup)
	var groups []*priceGroup
	for i, c := range cands {
		key := priceKey(c.Value)
		if g, ok := index[key]; ok {
			g.count++
			continue
		}
		g := &priceGroup{value: round2(c.Value), count: 1, first: i}
		index[key] = g
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.count != b.count {
			return a.count > b.count
		}
		af, bf := hasFraction(a.value), hasFraction(b.value)
		if af != bf {
			return af
		}
		return a.value < b.value
	})
	return groups[0].value
}

func hasFraction(v float64) bool {
	return v != math.Trunc(v)
}
