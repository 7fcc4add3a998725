package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/events"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
)

func TestMemoryStore_LocksRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := domain.LockRecord{
		TokenID:        "tok1",
		TrapID:         "trap1",
		RelativeOffset: geometry.Point{X: 5, Y: -5},
		MacroTriggered: true,
		TrapDataSnapshot: domain.TrapConfig{
			HasTriggerBlock: true,
			IsArmed:         true,
			CurrentUses:     1,
			MaxUses:         1,
		},
	}
	assert.NoError(t, s.SaveLock(ctx, rec))

	got, ok, err := s.GetLock(ctx, "tok1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "trap1", got.TrapID)
	assert.True(t, got.TrapDataSnapshot.IsArmed)

	list, err := s.ListLocks(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, s.DeleteLock(ctx, "tok1"))
	_, ok, err = s.GetLock(ctx, "tok1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_PendingChecksRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	pc := domain.PendingCheck{
		TrapID:        "trap1",
		CheckIndex:    0,
		Config:        domain.SkillCheck{SkillType: "perception", DC: 15},
		AdvantageMode: domain.AdvantageAdvantage,
		InitiatorID:   "player1",
		CharacterID:   "char1",
		CharacterName: "Rowan",
		LockedTokenID: "tok1",
	}
	assert.NoError(t, s.SavePendingCheck(ctx, pc))

	got, ok, err := s.GetPendingCheck(ctx, "player1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "perception", got.Config.SkillType)

	list, err := s.ListPendingChecks(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, s.DeletePendingCheck(ctx, "player1"))
	_, ok, err = s.GetPendingCheck(ctx, "player1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SpottedLedger(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	spotted, err := s.IsSpotted(ctx, "trap1", "char1")
	assert.NoError(t, err)
	assert.False(t, spotted)

	assert.NoError(t, s.MarkSpotted(ctx, "trap1", "char1"))
	spotted, err = s.IsSpotted(ctx, "trap1", "char1")
	assert.NoError(t, err)
	assert.True(t, spotted)

	assert.NoError(t, s.ClearSpotted(ctx, "trap1"))
	spotted, err = s.IsSpotted(ctx, "trap1", "char1")
	assert.NoError(t, err)
	assert.False(t, spotted)
}

func TestMemoryStore_EventsAssignSequencePerTrap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.AppendEvent(ctx, events.Armed("trap1")))
	assert.NoError(t, s.AppendEvent(ctx, events.Triggered("trap1", "tok1", "primary", 0)))
	assert.NoError(t, s.AppendEvent(ctx, events.Armed("trap2")))

	evs, err := s.ListEventsByTrap(ctx, "trap1")
	assert.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Equal(t, int64(1), evs[0].Sequence)
	assert.Equal(t, int64(2), evs[1].Sequence)
	assert.Equal(t, events.TypeTrapTriggered, evs[1].Type)

	other, err := s.ListEventsByTrap(ctx, "trap2")
	assert.NoError(t, err)
	assert.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Sequence)
}
