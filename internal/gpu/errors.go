package gpu

import "errors"

var (
	// ErrBackendUnavailable means the host environment lacks GPU compute support.
	ErrBackendUnavailable = errors.New("gpu backend unavailable")
	// ErrNoAdapter means the backend found no compatible physical device.
	ErrNoAdapter = errors.New("no compatible gpu adapter found")
	// ErrUnsupportedFeature is returned when a device is requested with a feature
	// the adapter does not offer.
	ErrUnsupportedFeature = errors.New("unsupported gpu feature")
	// ErrUnsupportedPrecision means reduced precision was requested on a device
	// without shader-f16.
	ErrUnsupportedPrecision = errors.New("unsupported precision")
	// ErrBindingLayoutMismatch is the backend rejecting a bind group that does not
	// match the pipeline's declared layout.
	ErrBindingLayoutMismatch = errors.New("bind group does not match pipeline layout")
	// ErrReadbackTimeout is returned when mapping a buffer for readback is abandoned
	// because the caller's context expired.
	ErrReadbackTimeout = errors.New("readback timed out")
	// ErrDeviceReleased is returned when a released handle is used.
	ErrDeviceReleased = errors.New("gpu device released")
	// ErrDeviceLost is returned when the device failed while executing work.
	ErrDeviceLost = errors.New("gpu device lost")
	// ErrValidation covers malformed resource descriptors and commands.
	ErrValidation = errors.New("gpu validation error")
)
