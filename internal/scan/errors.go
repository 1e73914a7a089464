package scan

import (
	"errors"

	"github.com/banshee-data/hyperscan/internal/paramspace"
	"github.com/banshee-data/hyperscan/internal/sampler"
)

// Errors a scan can return. ErrConfig, ErrEmptySpace and ErrBadSample are
// raised before any round runs.
var (
	ErrConfig     = paramspace.ErrConfig
	ErrEmptySpace = paramspace.ErrEmptySpace
	ErrBadSample  = sampler.ErrBadSample

	// ErrBadReturn means the training function returned a nil history or
	// artifact.
	ErrBadReturn = errors.New("training function returned no history or artifact")

	// ErrEmptyHistory means the history has no metrics, an empty series or
	// series of unequal length.
	ErrEmptyHistory = errors.New("training history is empty")

	// ErrRoundFailed wraps errors and panics from the training function.
	ErrRoundFailed = errors.New("training round failed")

	// ErrNoArtifact is returned by selection helpers when artifacts were not
	// retained.
	ErrNoArtifact = errors.New("artifacts were not retained")
)
