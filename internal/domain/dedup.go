package domain

import (
	"slices"
)

// Outcome describes how a group of same-day products was resolved.
type Outcome int

const (
	// OutcomeResolved means exactly one product survived.
	OutcomeResolved Outcome = iota
	// OutcomeFallback means only first-estimate products were present; all are kept.
	OutcomeFallback
	// OutcomeUnresolved means the preference order could not isolate one product; all are kept.
	OutcomeUnresolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unresolved"
	}
}

// Resolution is the dedup decision for one (incident, day) key.
type Resolution struct {
	Key     Key
	Keep    []Observation
	Delete  []Observation
	Outcome Outcome
	// Rule names the preference step that decided the outcome.
	Rule string
}

// ResolveDuplicates picks the product to keep among candidates sharing one
// (incident, day) key. Preference: a single monitoring product; else the
// highest monitoring version, delineation variant on a tie; else a single
// delineation product; else a single grading product. Anything else keeps
// every candidate.
func ResolveDuplicates(candidates []Observation) Resolution {
	r := Resolution{Outcome: OutcomeResolved, Rule: "single"}
	if len(candidates) > 0 {
		r.Key = candidates[0].Key()
	}
	if len(candidates) <= 1 {
		r.Keep = candidates
		return r
	}

	monitoring := byKind(candidates, KindMonitoring)
	switch {
	case len(monitoring) == 1:
		return keepOne(r, candidates, monitoring[0], "monitoring")
	case len(monitoring) > 1:
		top := highestVersion(candidates, monitoring)
		if len(top) == 1 {
			return keepOne(r, candidates, top[0], "monitoring_latest_version")
		}
		delineated := slices.DeleteFunc(slices.Clone(top), func(i int) bool {
			return !candidates[i].Product.Delineation
		})
		if len(delineated) == 1 {
			return keepOne(r, candidates, delineated[0], "monitoring_delineation_tiebreak")
		}
		return keepAll(r, candidates, OutcomeUnresolved, "monitoring_ambiguous")
	}

	delineation := byKind(candidates, KindDelineation)
	switch {
	case len(delineation) == 1:
		return keepOne(r, candidates, delineation[0], "delineation")
	case len(delineation) > 1:
		return keepAll(r, candidates, OutcomeUnresolved, "delineation_ambiguous")
	}

	grading := byKind(candidates, KindGrading)
	switch {
	case len(grading) == 1:
		return keepOne(r, candidates, grading[0], "grading")
	case len(grading) > 1:
		return keepAll(r, candidates, OutcomeUnresolved, "grading_ambiguous")
	}

	return keepAll(r, candidates, OutcomeFallback, "first_estimate_fallback")
}

// Deduplicate applies ResolveDuplicates to every (incident, day) key and
// returns the surviving observations plus the decisions for keys that had
// more than one candidate, ordered by incident and day.
func Deduplicate(obs []Observation) ([]Observation, []Resolution) {
	groups := make(map[Key][]Observation)
	var keys []Key
	for _, o := range obs {
		k := o.Key()
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], o)
	}
	slices.SortFunc(keys, compareKeys)

	kept := make([]Observation, 0, len(obs))
	var resolutions []Resolution
	for _, k := range keys {
		r := ResolveDuplicates(groups[k])
		kept = append(kept, r.Keep...)
		if len(groups[k]) > 1 {
			resolutions = append(resolutions, r)
		}
	}
	return kept, resolutions
}

// byKind returns the indexes of candidates of the given kind.
func byKind(candidates []Observation, kind ProductKind) []int {
	var idx []int
	for i, c := range candidates {
		if c.Product.Kind == kind {
			idx = append(idx, i)
		}
	}
	return idx
}

// highestVersion narrows monitoring indexes to those with the largest version.
func highestVersion(candidates []Observation, idx []int) []int {
	best := -1
	var top []int
	for _, i := range idx {
		v := candidates[i].Product.Version
		switch {
		case v > best:
			best = v
			top = []int{i}
		case v == best:
			top = append(top, i)
		}
	}
	return top
}

func keepOne(r Resolution, candidates []Observation, keep int, rule string) Resolution {
	r.Rule = rule
	r.Outcome = OutcomeResolved
	for i, c := range candidates {
		if i == keep {
			r.Keep = append(r.Keep, c)
		} else {
			r.Delete = append(r.Delete, c)
		}
	}
	return r
}

func keepAll(r Resolution, candidates []Observation, outcome Outcome, rule string) Resolution {
	r.Rule = rule
	r.Outcome = outcome
	r.Keep = candidates
	r.Delete = nil
	return r
}
