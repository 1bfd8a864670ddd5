package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module wraps exactly one of them,
// so callers can branch with errors.Is on the kind or on the concrete error.
var (
	ErrValidation = errors.New("validation error")
	ErrPhase      = errors.New("phase error")
	ErrNotFound   = errors.New("not found")
)

var ErrInvalidSeat = fmt.Errorf("%w: invalid seat", ErrValidation)
var ErrInvalidProposal = fmt.Errorf("%w: invalid proposal", ErrValidation)
var ErrInvalidVote = fmt.Errorf("%w: invalid vote", ErrValidation)
var ErrInvalidSetup = fmt.Errorf("%w: invalid game setup", ErrValidation)
var ErrUnsupportedCommand = fmt.Errorf("%w: unsupported command", ErrValidation)

var ErrProposalsClosed = fmt.Errorf("%w: proposals are closed", ErrPhase)
var ErrInvalidParticipant = fmt.Errorf("%w: not in the mission team", ErrPhase)
