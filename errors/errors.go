// Package errors defines sentinel errors for all RPCs. Return these unwrapped — wrapping changes the gRPC code on the wire.
package errors

import "github.com/heroiclabs/nakama-common/runtime"

// gRPC status codes.
const (
	CodeInternal    = 13 // codes.Internal
	CodeInvalidArg  = 3  // codes.InvalidArgument
	CodeForbidden   = 7  // codes.PermissionDenied
	CodeNotFound    = 5  // codes.NotFound
	CodeUnavailable = 14 // codes.Unavailable
)

// Unified error definitions
var (
	// Precondition failures (code 3) — client-facing, returned without any state mutation.
	ErrInsufficientBalance    = runtime.NewError("insufficient balance", CodeInvalidArg)
	ErrAlreadyInRound         = runtime.NewError("player already has an active round", CodeInvalidArg)
	ErrMaxOutstandingPrompts  = runtime.NewError("too many outstanding prompts", CodeInvalidArg)
	ErrNoPromptsAvailable     = runtime.NewError("no prompts available", CodeInvalidArg)
	ErrNoPhrasesetsAvailable  = runtime.NewError("no phrasesets available", CodeInvalidArg)
	ErrNoPromptsEnabled       = runtime.NewError("no prompts enabled in library", CodeInvalidArg)
	ErrAlreadyVoted           = runtime.NewError("player already voted on this phraseset", CodeInvalidArg)
	ErrInvalidChoice          = runtime.NewError("submitted phrase is not one of the three choices", CodeInvalidArg)
	ErrDailyBonusNotAvailable = runtime.NewError("daily bonus not available yet", CodeInvalidArg)

	// Not-found / ownership failures (code 5 / 7), plus the not-finalized and
	// round-expired preconditions (code 3)
	ErrRoundNotFound = runtime.NewError("round not found", CodeNotFound)
	ErrNotContributor = runtime.NewError("player did not contribute to this phraseset", CodeForbidden)
	ErrNotFinalized   = runtime.NewError("phraseset is not finalized", CodeInvalidArg)
	ErrRoundExpired   = runtime.NewError("round expired", CodeInvalidArg)

	// Validation failures (code 3) — always carry a human-readable reason via message.
	ErrInvalidPhrase   = runtime.NewError("invalid phrase", CodeInvalidArg)
	ErrDuplicatePhrase = runtime.NewError("phrase duplicates original or other copy", CodeInvalidArg)
	ErrPhraseTooSimilar = runtime.NewError("phrase too similar to a reference phrase", CodeInvalidArg)

	// Transient failures (code 14) — caller may retry.
	ErrLockTimeout             = runtime.NewError("lock acquisition timed out, try again", CodeUnavailable)
	ErrExternalServiceUnavailable = runtime.NewError("external service unavailable", CodeUnavailable)
	ErrQueueUnavailable        = runtime.NewError("queue unavailable", CodeUnavailable)

	// Internal invariant violations (code 13) — logged, halt the operation without partial side effects.
	// ErrNoUserIDFound is grouped here but carries code 3.
	ErrLedgerInconsistency    = runtime.NewError("ledger inconsistency detected", CodeInternal)
	ErrStateMachineViolation  = runtime.NewError("state machine violation", CodeInternal)
	ErrInternal               = runtime.NewError("internal server error", CodeInternal)
	ErrMarshal                = runtime.NewError("cannot marshal type", CodeInternal)
	ErrUnmarshal              = runtime.NewError("cannot unmarshal type", CodeInternal)
	ErrNoUserIDFound          = runtime.NewError("no user ID in context", CodeInvalidArg)
)
