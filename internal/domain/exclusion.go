package domain

import "strings"

// NormalizeExclusions trims codes and drops blanks and duplicates, keeping
// first-seen order.
func NormalizeExclusions(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// ExclusionSet is a lookup over normalized exclusion codes
type ExclusionSet map[string]struct{}

// NewExclusionSet builds a set from already-normalized codes
func NewExclusionSet(codes []string) ExclusionSet {
	set := make(ExclusionSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// Contains reports whether code is excluded
func (s ExclusionSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// SplitCandidates separates excluded candidates from the remaining ones
func (s ExclusionSet) SplitCandidates(candidates []UniqueCode) (remaining []UniqueCode, excluded int) {
	remaining = make([]UniqueCode, 0, len(candidates))
	for _, c := range candidates {
		if s.Contains(c.Code) {
			excluded++
			continue
		}
		remaining = append(remaining, c)
	}
	return remaining, excluded
}

// PrepareOutcome is the classification of one remaining candidate
type PrepareOutcome int

const (
	OutcomePrepare PrepareOutcome = iota
	OutcomeDuplicate
	OutcomeInvalid
)

// ClassifyCandidate decides what happens to a remaining candidate.
// preparedBy is the job that already prepared the code, or "" if none.
func ClassifyCandidate(code UniqueCode, preparedBy, jobID string) PrepareOutcome {
	if preparedBy != "" && preparedBy != jobID {
		return OutcomeDuplicate
	}
	if !code.Status.IsRelinkable() {
		return OutcomeInvalid
	}
	return OutcomePrepare
}
