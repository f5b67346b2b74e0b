// internal/game/errors.go
package game

import "fmt"

// RuleError is a rejected action. Every rule error is local and recoverable:
// the state machine leaves the match untouched and the caller reports the
// message to the acting player. Code is stable for clients; Message is for
// humans.
type RuleError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RuleError) Error() string {
	return e.Message
}

// Is matches rule errors by code so errors.Is works against the sentinel vars
// even when an instance carries a more specific message.
func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	return ok && t.Code == e.Code
}

var (
	ErrMatchNotFound        = &RuleError{"match_not_found", "match not found"}
	ErrPlayerNotFound       = &RuleError{"player_not_found", "player not found in this match"}
	ErrNotYourTurn          = &RuleError{"not_your_turn", "it is not your turn"}
	ErrWrongPhase           = &RuleError{"wrong_phase", "that action is not allowed in the current phase"}
	ErrCardNotInHand        = &RuleError{"card_not_in_hand", "card is not in your hand"}
	ErrInvalidMeld          = &RuleError{"invalid_meld", "cards do not form a legal run or set"}
	ErrMustKeepOneCard      = &RuleError{"must_keep_one_card", "you must keep at least one card in hand"}
	ErrEmptyPile            = &RuleError{"empty_pile", "that pile is empty"}
	ErrMeldNotFound         = &RuleError{"meld_not_found", "meld not found on the table"}
	ErrInvalidRearrangement = &RuleError{"invalid_rearrangement", "proposed table is not legal"}
)

// wrongPhase returns ErrWrongPhase with a situation-specific message.
func wrongPhase(format string, args ...interface{}) *RuleError {
	return &RuleError{Code: ErrWrongPhase.Code, Message: fmt.Sprintf(format, args...)}
}

// invalidRearrangement returns ErrInvalidRearrangement carrying the
// validator's sub-reason.
func invalidRearrangement(detail string) *RuleError {
	return &RuleError{Code: ErrInvalidRearrangement.Code, Message: detail}
}
