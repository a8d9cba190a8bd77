package statesync

import "errors"

// Package errors.
var (
	// ErrNilDevice is returned when constructing a Manager without a device.
	ErrNilDevice = errors.New("statesync: device is nil")

	// ErrNilDescriptor is returned when creating a state object with a nil descriptor.
	ErrNilDescriptor = errors.New("statesync: state descriptor is nil")

	// ErrNoProgram is returned by SetupDraw and SetupCompute when no program is bound.
	ErrNoProgram = errors.New("statesync: no program bound")

	// ErrNoVertexArray is returned by SetupDraw when no vertex array is bound.
	ErrNoVertexArray = errors.New("statesync: no vertex array bound")

	// ErrSlotOutOfRange is returned when a binding slot exceeds the device caps.
	ErrSlotOutOfRange = errors.New("statesync: binding slot out of range")

	// ErrDirtyDuringSync is returned when a state notification arrives while
	// the dirty bits are being drained. Handlers must not re-dirty state.
	ErrDirtyDuringSync = errors.New("statesync: state dirtied during sync")

	// ErrPartialRangeUnsupported is returned when a uniform buffer is bound at
	// a nonzero offset on a device without partial range support.
	ErrPartialRangeUnsupported = errors.New("statesync: partial uniform buffer ranges not supported")
)
