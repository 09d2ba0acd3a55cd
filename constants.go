package journal

import "github.com/jjacobson3/go-journal/internal/constants"

// Re-export constants for the public API.
const (
	LogCopies             = constants.LOGCOPIES
	LogSize               = constants.LOGSIZE
	MaxOpBlocks           = constants.MaxOpBlocks
	BSize                 = constants.BSize
	PipeSize              = constants.PipeSize
	AdmissionStallWarning = constants.AdmissionStallWarning
)
