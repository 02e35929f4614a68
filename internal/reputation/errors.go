package reputation

import "errors"

// Domain errors surfaced to the request layer. Handlers match these with
// errors.Is to pick response codes instead of inspecting message text.
var (
	ErrSelfEndorsement      = errors.New("you cannot endorse yourself")
	ErrInvalidRole          = errors.New("invalid tango role")
	ErrInvalidRating        = errors.New("rating must be between 1 and 5")
	ErrDuplicateEndorsement = errors.New("you have already endorsed this user for this role and skill")
	ErrEndorsementNotFound  = errors.New("endorsement not found")
)
