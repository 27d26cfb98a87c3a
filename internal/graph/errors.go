package graph

import "errors"

// Sentinel errors surfaced through the public API. The facade package
// re-exports these as its stable error contract.
var (
	// ErrNoCamerasFound is returned by lifecycle init when the
	// capability probe reports zero physical cameras.
	ErrNoCamerasFound = errors.New("no cameras found")

	// ErrStageCreation is returned when a hardware stage instance
	// cannot be created. Fatal to the enclosing operation.
	ErrStageCreation = errors.New("stage creation failed")

	// ErrStageQuery is returned when the capability stage cannot be
	// queried. Fatal: no camera configuration is possible afterwards.
	ErrStageQuery = errors.New("stage query failed")

	// ErrConfiguration covers synchronously detected configuration
	// mistakes: bad camera index, resolution beyond the sensor limit,
	// unsupported format, bit depth or sensor model. Never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrTooManyOutputs is returned when a camera slot's splitter
	// fan-out is exhausted. Prior allocations remain valid.
	ErrTooManyOutputs = errors.New("too many outputs requested")

	// ErrFormatCommit is returned when the hardware rejects a port's
	// pixel format and size combination. Indicates a configuration bug;
	// must be surfaced, not retried.
	ErrFormatCommit = errors.New("port format commit failed")
)
