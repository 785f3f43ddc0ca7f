// SPDX-License-Identifier: MIT
/*
Package analysis estimates per-channel EEG band powers and derives a coarse
mental-state label from them.

SpectralAnalyzer is stateless between calls apart from its pre-allocated
workspace, so identical windows always produce identical results.
*/
package analysis

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"eegstream/internal/eeg"
	"eegstream/internal/log"

	"github.com/mjibson/go-dsp/spectral"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Estimator selects the power spectrum estimate.
type Estimator string

const (
	// Periodogram computes |X[k]|^2 of one tapered FFT over the whole window.
	Periodogram Estimator = "periodogram"
	// Welch averages half-overlapping periodograms of half-window segments.
	// Smoother, at the cost of frequency resolution.
	Welch Estimator = "welch"
)

// ParseEstimator converts a name (case-insensitive) to an Estimator.
func ParseEstimator(name string) (Estimator, error) {
	switch strings.ToLower(name) {
	case "", "periodogram", "fft":
		return Periodogram, nil
	case "welch", "pwelch":
		return Welch, nil
	default:
		return Periodogram, fmt.Errorf("unknown spectral estimator: '%s'", name)
	}
}

// SpectralConfig tunes a SpectralAnalyzer. The zero value means Hann window,
// periodogram estimate and the default bands, same as DefaultSpectralConfig.
type SpectralConfig struct {
	Window    WindowFunc
	Estimator Estimator
	Bands     []BandRange
}

// DefaultSpectralConfig returns the Hann periodogram over DefaultBands.
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{Window: Hann, Estimator: Periodogram, Bands: DefaultBands()}
}

// Pre-allocated buffers for spectrum calculations.
type workspace struct {
	mu        sync.Mutex
	input     []float64    // windowed input
	fftOutput []complex128 // n/2+1 coefficients
	power     []float64    // |X[k]|^2
	sums      []float64    // per-band accumulator
	exp       int          // input was scaled by 2^-exp
}

// SpectralAnalyzer estimates band powers over fixed-size windows.
type SpectralAnalyzer struct {
	sampleRate float64
	size       int
	cfg        SpectralConfig

	fft    *fourier.FFT
	taper  []float64
	owners []int // band index of each periodogram bin, -1 if none

	ws workspace
}

// NewSpectralAnalyzer creates an analyzer for windows of windowSize samples
// taken at sampleRate. Any window size >= 2 is accepted; the FFT is not
// restricted to powers of two.
func NewSpectralAnalyzer(sampleRate float64, windowSize int, cfg SpectralConfig) (*SpectralAnalyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if windowSize < 2 {
		return nil, fmt.Errorf("window size must be at least 2, got %d", windowSize)
	}
	if cfg.Estimator == "" {
		cfg.Estimator = Periodogram
	}
	if cfg.Estimator != Periodogram && cfg.Estimator != Welch {
		return nil, fmt.Errorf("unknown spectral estimator: '%s'", cfg.Estimator)
	}
	if cfg.Estimator == Welch && windowSize < 8 {
		return nil, fmt.Errorf("welch estimate needs a window of at least 8 samples, got %d", windowSize)
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = DefaultBands()
	}
	if err := validateBands(cfg.Bands); err != nil {
		return nil, err
	}

	bins := windowSize/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * sampleRate / float64(windowSize)
	}

	log.Debugf("Analysis: SpectralAnalyzer (window: %d, rate: %.1f Hz, resolution: %.3f Hz, taper: %s, estimator: %s)",
		windowSize, sampleRate, sampleRate/float64(windowSize), cfg.Window, cfg.Estimator)

	return &SpectralAnalyzer{
		sampleRate: sampleRate,
		size:       windowSize,
		cfg:        cfg,
		fft:        fourier.NewFFT(windowSize),
		taper:      windowCoefficients(windowSize, cfg.Window),
		owners:     binBands(freqs, cfg.Bands),
		ws: workspace{
			input:     make([]float64, windowSize),
			fftOutput: make([]complex128, bins),
			power:     make([]float64, bins),
			sums:      make([]float64, len(cfg.Bands)),
		},
	}, nil
}

// WindowSize returns the number of samples one estimate consumes.
func (a *SpectralAnalyzer) WindowSize() int {
	return a.size
}

// SampleRate returns the configured sample rate (Hz).
func (a *SpectralAnalyzer) SampleRate() float64 {
	return a.sampleRate
}

// Analyze estimates the band powers of the newest WindowSize() values of
// window. Shorter input fails with eeg.ErrInsufficientData. Non-finite
// values are treated as zero, so the result is always finite and
// non-negative.
func (a *SpectralAnalyzer) Analyze(channel int, ts time.Duration, window []float64) (eeg.BandPowers, error) {
	if len(window) < a.size {
		return eeg.BandPowers{}, fmt.Errorf("channel %d: window of %d samples, need %d: %w",
			channel, len(window), a.size, eeg.ErrInsufficientData)
	}
	window = window[len(window)-a.size:]

	a.ws.mu.Lock()
	defer a.ws.mu.Unlock()

	peak := 0.0
	for i, v := range window {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.ws.input[i] = v
		peak = max(peak, math.Abs(v))
	}

	// Scale large windows to a peak below 1 so |X[k]|^2 cannot overflow. A
	// power of two keeps the scaling exact.
	a.ws.exp = 0
	if _, exp := math.Frexp(peak); exp > 0 {
		a.ws.exp = exp
		floats.Scale(math.Ldexp(1, -exp), a.ws.input)
	}

	switch a.cfg.Estimator {
	case Welch:
		a.welch()
	default:
		a.periodogram()
	}

	out := eeg.BandPowers{Timestamp: ts, Channel: channel}
	for i, r := range a.cfg.Bands {
		sum := math.Ldexp(a.ws.sums[i], 2*a.ws.exp)
		out.Set(r.Band, saturate(out.Get(r.Band)+sum))
	}
	return out, nil
}

// periodogram fills ws.sums with the per-band sum of |X[k]|^2.
func (a *SpectralAnalyzer) periodogram() {
	floats.Mul(a.ws.input, a.taper)
	a.fft.Coefficients(a.ws.fftOutput, a.ws.input)

	for k, c := range a.ws.fftOutput {
		re, im := real(c), imag(c)
		a.ws.power[k] = re*re + im*im
	}

	clear(a.ws.sums)
	for k, owner := range a.owners {
		if owner >= 0 {
			a.ws.sums[owner] += a.ws.power[k]
		}
	}
}

// welch fills ws.sums with the per-band sum of a Welch power spectral
// density estimate.
func (a *SpectralAnalyzer) welch() {
	segment := a.size / 2
	if segment%2 != 0 {
		segment--
	}
	pxx, freqs := spectral.Pwelch(a.ws.input, a.sampleRate, &spectral.PwelchOptions{
		NFFT:     segment,
		Noverlap: segment / 2,
		Window: func(n int) []float64 {
			return windowCoefficients(n, a.cfg.Window)
		},
	})

	clear(a.ws.sums)
	owners := binBands(freqs, a.cfg.Bands)
	for k, owner := range owners {
		if owner >= 0 {
			a.ws.sums[owner] += pxx[k]
		}
	}
}

// spectrum returns a copy of the periodogram power of the last Analyze
// call. It is empty when the Welch estimator is configured.
func (a *SpectralAnalyzer) spectrum() []float64 {
	a.ws.mu.Lock()
	defer a.ws.mu.Unlock()
	if a.cfg.Estimator == Welch {
		return nil
	}
	out := make([]float64, len(a.ws.power))
	for k, p := range a.ws.power {
		out[k] = finite(math.Ldexp(p, 2*a.ws.exp))
	}
	return out
}

// maxBandPower keeps the sum over all bands finite.
const maxBandPower = math.MaxFloat64 / (eeg.BandCount + 1)

func saturate(v float64) float64 {
	return min(finite(v), maxBandPower)
}

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	}
	return v
}
