// SPDX-License-Identifier: MIT
package eeg

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a sample that breaks the stream contract. The sample
	// is rejected and the stream keeps running.
	ErrValidation = errors.New("sample validation failed")

	// ErrInsufficientData is returned while not enough samples are buffered
	// for a spectral estimate. It is an expected startup condition.
	ErrInsufficientData = errors.New("not enough data")

	// ErrInvalidStream rejects stream metadata at connection time.
	ErrInvalidStream = errors.New("invalid stream")

	// ErrUpstreamDisconnect reports that the sample source stopped producing.
	ErrUpstreamDisconnect = errors.New("upstream disconnected")

	// ErrDisconnected is returned by a coordinator after Disconnect.
	ErrDisconnected = errors.New("stream disconnected")
)

// ValidationError carries the channel counts of a rejected sample.
type ValidationError struct {
	Expected int
	Got      int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: expected %d channels, got %d", ErrValidation, e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
