// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"eegstream/internal/eeg"
)

// BandRange is the frequency range of one band. A bin at frequency f
// belongs to the band when LowHz <= f < HighHz.
type BandRange struct {
	Band   eeg.Band
	LowHz  float64
	HighHz float64
}

// Contains reports whether f falls inside the band.
func (r BandRange) Contains(f float64) bool {
	return f >= r.LowHz && f < r.HighHz
}

// DefaultBands returns the canonical EEG bands. 12-13 Hz is deliberately
// left out of both alpha and beta.
func DefaultBands() []BandRange {
	return []BandRange{
		{Band: eeg.Delta, LowHz: 0.5, HighHz: 4},
		{Band: eeg.Theta, LowHz: 4, HighHz: 8},
		{Band: eeg.Alpha, LowHz: 8, HighHz: 12},
		{Band: eeg.Beta, LowHz: 13, HighHz: 30},
		{Band: eeg.Gamma, LowHz: 30, HighHz: 100},
	}
}

func validateBands(bands []BandRange) error {
	for _, r := range bands {
		if r.Band < eeg.Delta || r.Band > eeg.Gamma {
			return fmt.Errorf("unknown band %d", int(r.Band))
		}
		if r.LowHz < 0 || r.HighHz <= r.LowHz {
			return fmt.Errorf("band %s: invalid range [%.2f, %.2f)", r.Band, r.LowHz, r.HighHz)
		}
	}
	return nil
}

// binBands maps every spectrum bin to the index of the band that owns it,
// or -1. Bins are assigned to the first matching band.
func binBands(freqs []float64, bands []BandRange) []int {
	owner := make([]int, len(freqs))
	for i, f := range freqs {
		owner[i] = -1
		for j, r := range bands {
			if r.Contains(f) {
				owner[i] = j
				break
			}
		}
	}
	return owner
}
