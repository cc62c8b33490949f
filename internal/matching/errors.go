package matching

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMode       = errors.New("invalid game mode")
	ErrRequirementNotMet = errors.New("mode requirement not met")
	ErrAlreadyQueued     = errors.New("player already queued")
	ErrPenalized         = errors.New("player is serving a matchmaking penalty")
	ErrNotFound          = errors.New("not found")
	ErrNoServerAvailable = errors.New("no game server available")
	ErrMatchNotRunning   = errors.New("match is not in progress")
)

// RequirementError reports which mode threshold a player failed.
type RequirementError struct {
	ModeID      string
	Requirement string // "level", "min_rating" or "max_rating"
	Required    int
	Actual      int
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("mode %s requires %s %d (player has %d)", e.ModeID, e.Requirement, e.Required, e.Actual)
}

// Is lets errors.Is match ErrRequirementNotMet.
func (e *RequirementError) Is(target error) bool {
	return target == ErrRequirementNotMet
}

// PenaltyError is returned when a penalized player tries to queue.
type PenaltyError struct {
	Reason    string
	Remaining time.Duration
}

func (e *PenaltyError) Error() string {
	return fmt.Sprintf("player is penalized (%s) for another %s", e.Reason, e.Remaining.Round(time.Second))
}

// Is lets errors.Is match ErrPenalized.
func (e *PenaltyError) Is(target error) bool {
	return target == ErrPenalized
}

// rejectionReason maps a join error onto a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, ErrRequirementNotMet):
		return "requirement"
	case errors.Is(err, ErrAlreadyQueued):
		return "already_queued"
	case errors.Is(err, ErrPenalized):
		return "penalized"
	default:
		return "other"
	}
}
