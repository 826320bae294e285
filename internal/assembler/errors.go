package assembler

import "github.com/pkg/errors"

// Error kinds from spec §7, stored on the Assembler and sticky until
// the caller explicitly resets group state.
var (
	ErrInitCodebooks  = errors.New("assembler: codebook table construction failed")
	ErrInvalidFormat  = errors.New("assembler: unsupported input format or dimensions")
	ErrInvalidSize    = errors.New("assembler: dimensions exceed configured limits")
	ErrOverflow       = errors.New("assembler: bitstream overflow, sample abandoned")
	ErrMemory         = errors.New("assembler: scratch or pyramid allocation failed")
)

// maxEncodedDimension mirrors "width > 32768" from §7's INVALID_FORMAT
// condition.
const maxEncodedDimension = 32768
