package emotion

import (
	"sort"
	"strings"
)

// Observation maps emotion labels to non-negative scores, as returned by a
// single scorer invocation (one video frame, or one whole audio clip).
type Observation map[string]float64

// Aggregated is the merged emotion signal for a turn. Dominant is empty
// when no observation contributed a label.
type Aggregated struct {
	Dominant string
	Scores   map[string]float64
}

// AggregateVideo merges per-frame observations into one score map. Empty
// observations are dropped; each label's score is summed across the
// remaining observations and divided by their count, so labels missing
// from some frames are averaged over contributing frames only. The
// dominant label is the argmax of the averaged scores; ties go to the
// first-encountered label (observations in arrival order, labels within
// one observation in sorted order; later labels must be strictly greater
// to win).
func AggregateVideo(observations []Observation) Aggregated {
	sums := make(map[string]float64)
	var order []string
	count := 0

	for _, obs := range observations {
		if len(obs) == 0 {
			continue
		}
		count++
		for _, label := range sortedLabels(obs) {
			if _, seen := sums[label]; !seen {
				order = append(order, label)
			}
			sums[label] += obs[label]
		}
	}

	if count == 0 {
		return Aggregated{Scores: map[string]float64{}}
	}

	avg := make(map[string]float64, len(sums))
	for label, sum := range sums {
		avg[label] = sum / float64(count)
	}

	dominant := ""
	best := 0.0
	for i, label := range order {
		if i == 0 || avg[label] > best {
			dominant = label
			best = avg[label]
		}
	}

	return Aggregated{Dominant: dominant, Scores: avg}
}

// SelectDominant returns the argmax label of a score map, or the empty
// string for an empty map. Labels are visited in sorted order and a later
// label must score strictly higher to displace the current winner, which
// keeps the result deterministic under Go's randomized map iteration.
func SelectDominant(scores map[string]float64) string {
	dominant := ""
	best := 0.0
	for i, label := range sortedLabels(scores) {
		if i == 0 || scores[label] > best {
			dominant = label
			best = scores[label]
		}
	}
	return dominant
}

// Normalize reduces a provider-qualified label such as "category/neutral"
// to its trailing segment.
func Normalize(label string) string {
	if idx := strings.LastIndex(label, "/"); idx >= 0 {
		label = label[idx+1:]
	}
	return strings.TrimSpace(label)
}

func sortedLabels(obs map[string]float64) []string {
	labels := make([]string, 0, len(obs))
	for label := range obs {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
