// SPDX-License-Identifier: MIT
package filter

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Coefficients of a normalised second-order section (a0 == 1):
//
//	H(z) = (B0 + B1 z^-1 + B2 z^-2) / (1 + A1 z^-1 + A2 z^-2)
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

func normalise(b0, b1, b2, a0, a1, a2 float64) Coefficients {
	inv := 1 / a0
	return Coefficients{B0: b0 * inv, B1: b1 * inv, B2: b2 * inv, A1: a1 * inv, A2: a2 * inv}
}

// Magnitude returns |H| at frequency f for a section running at sampleRate.
func (c Coefficients) Magnitude(f, sampleRate float64) float64 {
	z := cmplx.Exp(complex(0, -2*math.Pi*f/sampleRate)) // z^-1
	num := complex(c.B0, 0) + complex(c.B1, 0)*z + complex(c.B2, 0)*z*z
	den := 1 + complex(c.A1, 0)*z + complex(c.A2, 0)*z*z
	return cmplx.Abs(num / den)
}

// Biquad is one second-order section with its own memory, evaluated in
// transposed direct form II.
type Biquad struct {
	Coefficients
	z1, z2 float64
}

// NewBiquad returns a section with cleared memory.
func NewBiquad(c Coefficients) Biquad {
	return Biquad{Coefficients: c}
}

// Process filters one value and advances the section memory.
func (b *Biquad) Process(x float64) float64 {
	y := b.B0*x + b.z1
	b.z1 = b.B1*x - b.A1*y + b.z2
	b.z2 = b.B2*x - b.A2*y
	return y
}

// Reset clears the section memory.
func (b *Biquad) Reset() {
	b.z1, b.z2 = 0, 0
}

// Cascade is a chain of sections applied in order.
type Cascade []Biquad

// NewCascade builds a cascade from section designs.
func NewCascade(sections ...[]Coefficients) Cascade {
	var c Cascade
	for _, group := range sections {
		for _, s := range group {
			c = append(c, NewBiquad(s))
		}
	}
	return c
}

// Process runs x through every section.
func (c Cascade) Process(x float64) float64 {
	for i := range c {
		x = c[i].Process(x)
	}
	return x
}

// Reset clears the memory of every section.
func (c Cascade) Reset() {
	for i := range c {
		c[i].Reset()
	}
}

// Magnitude returns the combined |H| of the cascade at frequency f.
func (c Cascade) Magnitude(f, sampleRate float64) float64 {
	m := 1.0
	for _, s := range c {
		m *= s.Magnitude(f, sampleRate)
	}
	return m
}

// Clone returns a cascade with the same coefficients and cleared memory.
func (c Cascade) Clone() Cascade {
	out := make(Cascade, len(c))
	for i, s := range c {
		out[i] = NewBiquad(s.Coefficients)
	}
	return out
}

func checkCorner(f, sampleRate float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if f <= 0 || f >= sampleRate/2 {
		return fmt.Errorf("frequency %.3f Hz outside (0, %.3f)", f, sampleRate/2)
	}
	return nil
}

// butterworthQ returns the section Q values of an even-order Butterworth
// response.
func butterworthQ(order int) ([]float64, error) {
	if order < 2 || order%2 != 0 {
		return nil, fmt.Errorf("butterworth order must be even and >= 2, got %d", order)
	}
	qs := make([]float64, order/2)
	for k := range qs {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		qs[k] = 1 / (2 * math.Cos(theta))
	}
	return qs, nil
}

// ButterworthLowPass designs an even-order low-pass Butterworth filter as a
// set of second-order sections sharing the corner frequency.
func ButterworthLowPass(order int, corner, sampleRate float64) ([]Coefficients, error) {
	if err := checkCorner(corner, sampleRate); err != nil {
		return nil, fmt.Errorf("low-pass: %w", err)
	}
	qs, err := butterworthQ(order)
	if err != nil {
		return nil, fmt.Errorf("low-pass: %w", err)
	}

	w0 := 2 * math.Pi * corner / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	out := make([]Coefficients, len(qs))
	for i, q := range qs {
		alpha := sinW / (2 * q)
		out[i] = normalise(
			(1-cosW)/2, 1-cosW, (1-cosW)/2,
			1+alpha, -2*cosW, 1-alpha,
		)
	}
	return out, nil
}

// ButterworthHighPass designs an even-order high-pass Butterworth filter.
func ButterworthHighPass(order int, corner, sampleRate float64) ([]Coefficients, error) {
	if err := checkCorner(corner, sampleRate); err != nil {
		return nil, fmt.Errorf("high-pass: %w", err)
	}
	qs, err := butterworthQ(order)
	if err != nil {
		return nil, fmt.Errorf("high-pass: %w", err)
	}

	w0 := 2 * math.Pi * corner / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	out := make([]Coefficients, len(qs))
	for i, q := range qs {
		alpha := sinW / (2 * q)
		out[i] = normalise(
			(1+cosW)/2, -(1 + cosW), (1+cosW)/2,
			1+alpha, -2*cosW, 1-alpha,
		)
	}
	return out, nil
}

// Notch designs a band-reject section centred on center with the given
// -3 dB bandwidth.
func Notch(center, bandwidth, sampleRate float64) (Coefficients, error) {
	if err := checkCorner(center, sampleRate); err != nil {
		return Coefficients{}, fmt.Errorf("notch: %w", err)
	}
	if bandwidth <= 0 {
		return Coefficients{}, fmt.Errorf("notch: bandwidth must be positive, got %f", bandwidth)
	}

	q := center / bandwidth
	w0 := 2 * math.Pi * center / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	return normalise(
		1, -2*cosW, 1,
		1+alpha, -2*cosW, 1-alpha,
	), nil
}
