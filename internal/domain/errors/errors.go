// Package errors defines the trap engine's error taxonomy (spec §7). Each
// kind carries enough context to render a short GM-facing message; callers
// are expected to recover locally rather than propagate these further, with
// the single exception of MismatchError (see its doc comment).
package errors

import "fmt"

// ConfigParseError means a map object's notes could not be decoded, or
// decoded to a configuration that violates a Trap Config invariant.
// Recovery: treat the object as "not a trap" and log.
type ConfigParseError struct {
	ObjectID string
	Reason   string
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("config parse error on %s: %s", e.ObjectID, e.Reason)
}

// NewConfigParseError creates a ConfigParseError.
func NewConfigParseError(objectID, reason string) *ConfigParseError {
	return &ConfigParseError{ObjectID: objectID, Reason: reason}
}

// HostObjectMissing means a referenced id did not resolve against the host.
// Recovery: warn the GM, skip the action.
type HostObjectMissing struct {
	ObjectID string
	Context  string
}

func (e *HostObjectMissing) Error() string {
	return fmt.Sprintf("host object %s not found (%s)", e.ObjectID, e.Context)
}

// NewHostObjectMissing creates a HostObjectMissing.
func NewHostObjectMissing(objectID, context string) *HostObjectMissing {
	return &HostObjectMissing{ObjectID: objectID, Context: context}
}

// AuthorizationDenied means a roll or command arrived from a user who does
// not control the character or trap in question. Recovery: ignore and keep
// searching for another match.
type AuthorizationDenied struct {
	UserID string
	Action string
}

func (e *AuthorizationDenied) Error() string {
	return fmt.Sprintf("user %s is not authorized to %s", e.UserID, e.Action)
}

// NewAuthorizationDenied creates an AuthorizationDenied.
func NewAuthorizationDenied(userID, action string) *AuthorizationDenied {
	return &AuthorizationDenied{UserID: userID, Action: action}
}

// ActionExecutionFailure means a macro name was unknown, a template was
// malformed, or a required collaborator (e.g. the area-trigger runner) was
// missing. Recovery: warn the GM, continue with the remaining lanes.
type ActionExecutionFailure struct {
	Action string
	Reason string
}

func (e *ActionExecutionFailure) Error() string {
	return fmt.Sprintf("action %q failed: %s", e.Action, e.Reason)
}

// NewActionExecutionFailure creates an ActionExecutionFailure.
func NewActionExecutionFailure(action, reason string) *ActionExecutionFailure {
	return &ActionExecutionFailure{Action: action, Reason: reason}
}

// SheetLookupFailure means passive perception could not be derived for an
// observer. Recovery: silently skip that (observer, trap) pair.
type SheetLookupFailure struct {
	CharacterID string
	Reason      string
}

func (e *SheetLookupFailure) Error() string {
	return fmt.Sprintf("sheet lookup failed for %s: %s", e.CharacterID, e.Reason)
}

// NewSheetLookupFailure creates a SheetLookupFailure.
func NewSheetLookupFailure(characterID, reason string) *SheetLookupFailure {
	return &SheetLookupFailure{CharacterID: characterID, Reason: reason}
}

// MismatchError means an incoming roll's skill disagrees with the pending
// check's expected skill. Unlike the other kinds, this one is NOT recovered
// locally: the caller must surface a GM arbitration menu instead of
// swallowing it.
type MismatchError struct {
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("skill mismatch: expected %q, got %q", e.Expected, e.Got)
}

// NewMismatchError creates a MismatchError.
func NewMismatchError(expected, got string) *MismatchError {
	return &MismatchError{Expected: expected, Got: got}
}
