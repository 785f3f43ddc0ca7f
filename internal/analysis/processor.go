// SPDX-License-Identifier: MIT
package analysis

import (
	"time"

	"eegstream/internal/eeg"
)

// BandAnalyzer turns a window of single-channel samples into band powers.
// The stream coordinator depends on this interface rather than on a
// concrete estimator.
type BandAnalyzer interface {
	// Analyze estimates the band powers of the newest WindowSize() values.
	Analyze(channel int, ts time.Duration, window []float64) (eeg.BandPowers, error)
	// WindowSize is the number of samples one estimate needs.
	WindowSize() int
}

// StateClassifier labels band powers.
type StateClassifier interface {
	Classify(p eeg.BandPowers) eeg.Classification
}

// Compile-time checks for interface implementations.
var _ BandAnalyzer = (*SpectralAnalyzer)(nil)
var _ StateClassifier = (*Classifier)(nil)
