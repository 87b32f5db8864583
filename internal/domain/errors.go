package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Conflicts and validation failures are expected outcomes, not crashes.

var (
	// Perk registry
	ErrNoName            = errors.New("perk name is required")
	ErrAlreadyAcquired   = errors.New("perk already acquired")
	ErrInsufficientFunds = errors.New("insufficient points")
	ErrPerkNotFound      = errors.New("perk not found")
	ErrNotToggleable     = errors.New("perk is not toggleable")
	ErrAlreadyScaling    = errors.New("perk already scaling")
	ErrAlreadyUncapped   = errors.New("perk already uncapped")

	// Banking
	ErrBankFull       = errors.New("bank is full")
	ErrAlreadyBanked  = errors.New("perk already banked")
	ErrBankedNotFound = errors.New("banked perk not found")

	// Perk database
	ErrCatalogDuplicate      = errors.New("perk already catalogued in constellation")
	ErrCatalogEntryNotFound  = errors.New("catalog entry not found")
	ErrConstellationExists   = errors.New("constellation already exists")
	ErrBuiltinConstellation  = errors.New("built-in constellation cannot be changed")
	ErrConstellationNotFound = errors.New("constellation not found")
	ErrNoCatalogPerks        = errors.New("no perks available in constellation")
	ErrInvalidLabel          = errors.New("constellation label is required")

	// Roll / creation session
	ErrRollPending = errors.New("a roll is already awaiting a decision")
	ErrNoRoll      = errors.New("no roll awaiting a decision")
	ErrNoProposal  = errors.New("no perk proposal found in message")

	// Profiles and persistence
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("profile name is required")
	ErrStateNotFound   = errors.New("no saved state")

	// Parsing
	ErrMalformedCheckpoint = errors.New("malformed checkpoint block")
	ErrMalformedImport     = errors.New("malformed state document")

	// Host / capabilities
	ErrTrackingDisabled = errors.New("tracking disabled")
	ErrNoGenerator      = errors.New("text generation unavailable")
)

// InsufficientFundsError carries the pending marker set by a failed purchase.
type InsufficientFundsError struct {
	Pending PendingMarker
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: need %d more", e.Pending.Name, e.Pending.Needed)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotFoundError names the missing perk and, when one is close, a suggestion.
type NotFoundError struct {
	Name       string
	Suggestion string
	Err        error // ErrPerkNotFound or ErrBankedNotFound
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v: %q (did you mean %q?)", e.Err, e.Name, e.Suggestion)
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Name)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ─── Reason Codes ───────────────────────────────────────────────────────────

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrNoName, "no_name"},
	{ErrAlreadyAcquired, "already_acquired"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrPerkNotFound, "not_found"},
	{ErrNotToggleable, "not_toggleable"},
	{ErrAlreadyScaling, "already_scaling"},
	{ErrAlreadyUncapped, "already_uncapped"},
	{ErrBankFull, "bank_full"},
	{ErrAlreadyBanked, "already_banked"},
	{ErrBankedNotFound, "not_found"},
	{ErrCatalogDuplicate, "duplicate"},
	{ErrCatalogEntryNotFound, "not_found"},
	{ErrConstellationExists, "constellation_exists"},
	{ErrBuiltinConstellation, "builtin_constellation"},
	{ErrConstellationNotFound, "not_found"},
	{ErrNoCatalogPerks, "no_perks_available"},
	{ErrInvalidLabel, "invalid_label"},
	{ErrRollPending, "roll_pending"},
	{ErrNoRoll, "no_roll"},
	{ErrNoProposal, "no_proposal"},
	{ErrProfileExists, "profile_exists"},
	{ErrProfileNotFound, "not_found"},
	{ErrInvalidProfile, "invalid_profile"},
	{ErrMalformedCheckpoint, "malformed_checkpoint"},
	{ErrMalformedImport, "malformed_import"},
	{ErrTrackingDisabled, "tracking_disabled"},
	{ErrNoGenerator, "no_generator"},
}

// ReasonOf maps an error onto a stable reason code. Unknown errors map to
// "internal"; nil maps to "".
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "internal"
}
