// SPDX-License-Identifier: MIT
package analysis

import "eegstream/internal/eeg"

// ClassifierPolicy holds the quality score reported for each state.
type ClassifierPolicy struct {
	DeepQuality    int
	RelaxedQuality int
	ActiveQuality  int
}

// DefaultPolicy returns the standard quality scores.
func DefaultPolicy() ClassifierPolicy {
	return ClassifierPolicy{DeepQuality: 90, RelaxedQuality: 70, ActiveQuality: 40}
}

// Classifier maps band powers to a coarse state label:
//
//	alpha > beta && theta > beta -> DeepState
//	alpha > beta                 -> RelaxedFocus
//	otherwise                    -> ActiveState
//
// It holds no state, so it is safe for concurrent use.
type Classifier struct {
	policy ClassifierPolicy
}

// NewClassifier returns a classifier reporting the scores of policy.
func NewClassifier(policy ClassifierPolicy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify labels p. The result carries the timestamp and channel of p.
func (c *Classifier) Classify(p eeg.BandPowers) eeg.Classification {
	out := eeg.Classification{Timestamp: p.Timestamp, Channel: p.Channel}
	switch {
	case p.Alpha > p.Beta && p.Theta > p.Beta:
		out.Label, out.Quality = eeg.DeepState, c.policy.DeepQuality
	case p.Alpha > p.Beta:
		out.Label, out.Quality = eeg.RelaxedFocus, c.policy.RelaxedQuality
	default:
		out.Label, out.Quality = eeg.ActiveState, c.policy.ActiveQuality
	}
	return out
}

// Classify labels p with the default policy.
func Classify(p eeg.BandPowers) eeg.Classification {
	return NewClassifier(DefaultPolicy()).Classify(p)
}
