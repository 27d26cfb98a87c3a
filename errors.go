package camgraph

import (
	"github.com/e7canasta/camgraph/internal/capture"
	"github.com/e7canasta/camgraph/internal/graph"
)

// Public API errors — re-exported from the internal packages as the
// stable contract. Match with errors.Is.
var (
	// ErrNoCamerasFound: the capability probe reported zero cameras.
	ErrNoCamerasFound = graph.ErrNoCamerasFound
	// ErrStageCreation: a hardware stage could not be created or
	// enabled. Fatal to the enclosing operation; no retry.
	ErrStageCreation = graph.ErrStageCreation
	// ErrStageQuery: a stage or port could not be queried.
	ErrStageQuery = graph.ErrStageQuery
	// ErrConfiguration: synchronously detected configuration mistake
	// (bad camera index, size beyond sensor limit, unsupported format,
	// bit depth or sensor model).
	ErrConfiguration = graph.ErrConfiguration
	// ErrTooManyOutputs: the slot's splitter fan-out is exhausted.
	ErrTooManyOutputs = graph.ErrTooManyOutputs
	// ErrFormatCommit: the hardware rejected a port format.
	ErrFormatCommit = graph.ErrFormatCommit
	// ErrNoFrameAvailable: Frame or Render called without a prior
	// successful capture, or after a failed hardware operation.
	ErrNoFrameAvailable = capture.ErrNoFrameAvailable
)
