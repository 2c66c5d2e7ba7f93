// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors following the ADR-021 error handling pattern.
var (
	// Payload decoding errors
	ErrMalformedHexPayload = errors.New("wsinspect: malformed hex payload")

	// Reassembly errors
	ErrOrphanContinuation = errors.New("wsinspect: continuation frame without open message")

	// Emission errors
	ErrEmissionFailed = errors.New("wsinspect: synthetic request emission failed")
	ErrEmitQueueFull  = errors.New("wsinspect: emit queue full")

	// Plugin errors
	ErrInjectorNotFound = errors.New("wsinspect: injector not found")

	// Configuration errors
	ErrConfigInvalid = errors.New("wsinspect: invalid configuration")
)
