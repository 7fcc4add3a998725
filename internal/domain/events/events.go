// Package events defines the trap engine's audit event stream: an
// append-only record of what happened to a trap (armed, triggered, locked,
// a check resolved, a detection spotted) independent of the map object's
// own notes blob. Grounded on the teacher's internal/domain/events.go
// (EventType enum + BaseEvent + typed NewXEvent factories), adapted from a
// workflow/node aggregate to a trap aggregate: TrapID takes the place of
// AggregateID/ExecutionID, and there is no NodeID axis.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names one kind of thing that happened to a trap.
type Type string

const (
	TypeTrapArmed           Type = "trap.armed"
	TypeTrapDisarmed        Type = "trap.disarmed"
	TypeTrapTriggered       Type = "trap.triggered"
	TypeTrapUsesDepleted    Type = "trap.uses_depleted"
	TypeLockAcquired        Type = "lock.acquired"
	TypeLockReleased        Type = "lock.released"
	TypeLockVetoed          Type = "lock.vetoed"
	TypeCheckCreated        Type = "check.created"
	TypeCheckResolved       Type = "check.resolved"
	TypeCheckMismatched     Type = "check.mismatched"
	TypeDetectionSpotted    Type = "detection.spotted"
	TypeDetectionReset      Type = "detection.reset"
	TypeImmunityTagToggled  Type = "immunity.toggled"
)

// Event is an immutable audit record. Unlike the workflow engine this is
// descended from, the trap engine's source of truth is always the host
// object's notes blob — Event never gets replayed to rebuild state, it
// only supports the "what happened and when" audit trail of SPEC_FULL.md's
// supplemented audit-log feature.
type Event struct {
	EventID   uuid.UUID
	Type      Type
	Sequence  int64
	TrapID    string
	TokenID   string
	PageID    string
	Timestamp time.Time
	Data      map[string]any
	Metadata  map[string]string
}

// New creates an event stamped with a fresh id, leaving Sequence to the
// store (the store assigns sequence numbers per trap on append).
func New(typ Type, trapID, tokenID, pageID string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		EventID:   uuid.New(),
		Type:      typ,
		TrapID:    trapID,
		TokenID:   tokenID,
		PageID:    pageID,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  map[string]string{},
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Armed, Disarmed, Triggered, UsesDepleted, LockAcquired, LockReleased,
// LockVetoed, CheckCreated, CheckResolved, CheckMismatched, Spotted and
// Reset are typed convenience constructors, mirroring the teacher's
// NewExecutionStartedEvent-style factories one event kind at a time.

func Armed(trapID string) Event {
	return New(TypeTrapArmed, trapID, "", "", nil)
}

func Disarmed(trapID string) Event {
	return New(TypeTrapDisarmed, trapID, "", "", nil)
}

func Triggered(trapID, tokenID, action string, usesRemaining int) Event {
	return New(TypeTrapTriggered, trapID, tokenID, "", map[string]any{
		"action":         action,
		"uses_remaining": usesRemaining,
	})
}

func UsesDepleted(trapID string) Event {
	return New(TypeTrapUsesDepleted, trapID, "", "", nil)
}

func LockAcquired(trapID, tokenID string) Event {
	return New(TypeLockAcquired, trapID, tokenID, "", nil)
}

func LockReleased(trapID, tokenID, reason string) Event {
	return New(TypeLockReleased, trapID, tokenID, "", map[string]any{"reason": reason})
}

func LockVetoed(trapID, tokenID string) Event {
	return New(TypeLockVetoed, trapID, tokenID, "", nil)
}

func CheckCreated(trapID, tokenID, skillType string, dc int) Event {
	return New(TypeCheckCreated, trapID, tokenID, "", map[string]any{
		"skill_type": skillType,
		"dc":         dc,
	})
}

func CheckResolved(trapID, tokenID string, total, dc int, success bool) Event {
	return New(TypeCheckResolved, trapID, tokenID, "", map[string]any{
		"total":   total,
		"dc":      dc,
		"success": success,
	})
}

func CheckMismatched(trapID, tokenID, rolledSkill string) Event {
	return New(TypeCheckMismatched, trapID, tokenID, "", map[string]any{"rolled_skill": rolledSkill})
}

func Spotted(trapID, observerID string, passivePerception, dc int) Event {
	return New(TypeDetectionSpotted, trapID, observerID, "", map[string]any{
		"passive_perception": passivePerception,
		"dc":                 dc,
	})
}

func Reset(trapID string) Event {
	return New(TypeDetectionReset, trapID, "", "", nil)
}

func ImmunityTagToggled(tokenID string, on bool) Event {
	return New(TypeImmunityTagToggled, "", tokenID, "", map[string]any{"on": on})
}
