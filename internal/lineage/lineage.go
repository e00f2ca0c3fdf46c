// Package lineage infers the parent-child forest over a set of
// normalised LLM calls, using context-prefix similarity scoring — no
// transport metadata is consulted, only message/tool content.
package lineage

import (
	"math"
	"sort"

	"github.com/llmtap/llmtap/internal/artifact"
)

// Assign reconstructs parentage in place: every element of requests gets
// its ParentID set (possibly nil).
func Assign(requests []artifact.CookedRequest) {
	n := len(requests)
	if n == 0 {
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := requests[order[a]], requests[order[b]]
		if ra.TimestampMS != rb.TimestampMS {
			return ra.TimestampMS < rb.TimestampMS
		}
		return ra.ID < rb.ID
	})

	for pos, idx := range order {
		r := &requests[idx]
		earlier := order[:pos]

		// Candidates: same model, strictly earlier timestamp. Walk
		// newest-to-oldest so the tie-break (largest timestamp among
		// equal top scores) falls out of "strict improvements only".
		candidateIdx := make([]int, 0, len(earlier))
		for _, cidx := range earlier {
			c := requests[cidx]
			if c.Model == r.Model && c.TimestampMS < r.TimestampMS {
				candidateIdx = append(candidateIdx, cidx)
			}
		}
		if len(candidateIdx) == 0 {
			r.ParentID = nil
			continue
		}
		sort.SliceStable(candidateIdx, func(a, b int) bool {
			ca, cb := requests[candidateIdx[a]], requests[candidateIdx[b]]
			if ca.TimestampMS != cb.TimestampMS {
				return ca.TimestampMS > cb.TimestampMS
			}
			return ca.ID > cb.ID
		})

		bestScore := math.Inf(-1)
		bestIdx := -1
		for _, cidx := range candidateIdx {
			score := score(requests[cidx], *r)
			if score > bestScore {
				bestScore = score
				bestIdx = cidx
			}
		}

		l := float64(len(r.RequestMessages))
		threshold := -0.5 * l
		if bestIdx >= 0 && bestScore >= threshold {
			parent := requests[bestIdx].ID
			r.ParentID = &parent
		} else {
			r.ParentID = nil
		}
	}
}

// score combines negative Levenshtein distance over message-id lists
// with a tool-set symmetric-difference penalty.
func score(c, r artifact.CookedRequest) float64 {
	expected := c.ExpectedPrefix()
	messageScore := -float64(editDistance(expected, r.RequestMessages))
	toolScore := -0.5 * float64(symmetricDifferenceSize(c.ToolSet(), r.ToolSet()))
	return messageScore + toolScore
}

func symmetricDifferenceSize(a, b map[string]struct{}) int {
	count := 0
	for k := range a {
		if _, ok := b[k]; !ok {
			count++
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			count++
		}
	}
	return count
}
