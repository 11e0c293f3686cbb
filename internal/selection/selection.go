// Package selection picks one primary aliquot per case from the candidate
// aliquot level MAF files of a batch.
//
// Files of one case are ordered by creation date (latest first), then by the
// best sample rank they contain, then by file id. Samples of the winning file
// are ordered by rank, then by aliquot id. The result never depends on the
// order of the input.
package selection

import (
	"sort"
	"time"
)

// SampleCriterion is one aliquot that may become the primary aliquot of its case.
type SampleCriterion struct {
	ID         string // aliquot submitter id
	SampleType string
	TissueType string
}

// Rank returns the classification rank of the sample.
func (s SampleCriterion) Rank() Rank {
	return Classify(s.SampleType, s.TissueType)
}

// Criterion is one downloadable file of a case together with its samples.
type Criterion struct {
	ID              string // file id
	CaseID          string
	Samples         []SampleCriterion
	MAFCreationDate time.Time
}

// Result is the primary aliquot chosen for a case.
type Result struct {
	CaseID   string
	ID       string // winning file id
	SampleID string // winning aliquot submitter id, empty if the file had no samples
}

// SelectPrimaryAliquots returns exactly one Result per distinct case id in
// criteria, keyed by case id.
func SelectPrimaryAliquots(criteria []Criterion) map[string]Result {
	byCase := make(map[string][]Criterion)
	for _, c := range criteria {
		byCase[c.CaseID] = append(byCase[c.CaseID], c)
	}

	results := make(map[string]Result, len(byCase))
	for caseID, candidates := range byCase {
		winner := selectFile(candidates)
		results[caseID] = Result{
			CaseID:   caseID,
			ID:       winner.ID,
			SampleID: selectSample(winner.Samples).ID,
		}
	}
	return results
}

// Sorted returns the results ordered by case id.
func Sorted(results map[string]Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CaseID < out[j].CaseID
	})
	return out
}

func selectFile(candidates []Criterion) Criterion {
	best := candidates[0]
	bestRank := bestSampleRank(best.Samples)
	for _, c := range candidates[1:] {
		r := bestSampleRank(c.Samples)
		if fileLess(c, r, best, bestRank) {
			best, bestRank = c, r
		}
	}
	return best
}

// fileLess reports whether file a sorts before file b.
func fileLess(a Criterion, aRank Rank, b Criterion, bRank Rank) bool {
	if !a.MAFCreationDate.Equal(b.MAFCreationDate) {
		return a.MAFCreationDate.After(b.MAFCreationDate)
	}
	if aRank != bRank {
		return aRank > bRank
	}
	return a.ID < b.ID
}

func bestSampleRank(samples []SampleCriterion) Rank {
	if len(samples) == 0 {
		return rankNoSamples
	}
	return selectSample(samples).Rank()
}

func selectSample(samples []SampleCriterion) SampleCriterion {
	if len(samples) == 0 {
		return SampleCriterion{}
	}
	best := samples[0]
	bestRank := best.Rank()
	for _, s := range samples[1:] {
		r := s.Rank()
		if r > bestRank || (r == bestRank && s.ID < best.ID) {
			best, bestRank = s, r
		}
	}
	return best
}
