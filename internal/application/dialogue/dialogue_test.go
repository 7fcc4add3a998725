package dialogue

import (
	"context"
	"testing"

	"github.com/oakhollow/trapengine/internal/application/locks"
	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
	"github.com/oakhollow/trapengine/internal/testhost"
)

type fakeActions struct {
	ran []string
}

func (f *fakeActions) RunByID(ctx context.Context, platform host.Platform, trapID, trappedTokenID, action string) error {
	f.ran = append(f.ran, action)
	return nil
}

func interactionTrapNotes(uses, max int) string {
	return notes.Encode("", domain.TrapConfig{
		HasTriggerBlock: true,
		Type:            domain.TrapTypeInteraction,
		CurrentUses:     uses, MaxUses: max,
		IsArmed:         true,
		PrimaryMacro:    "#Warn",
		SuccessMacro:    "!Safe",
		FailureMacro:    "!Hurt",
		Checks:          []domain.SkillCheck{{SkillType: "Perception", DC: 12}},
		MovementTrigger: true,
	})
}

func TestResolveByCharacterSuccessReleasesLock(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"notes": interactionTrapNotes(2, 2)})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{"notes": ""})
	p.Controllers["char1"] = []string{"player1"}

	reg := locks.NewRegistry()
	trap := domain.TrapConfig{HasTriggerBlock: true}
	zero := geometry.Point{}
	if err := reg.Acquire(ctx, p, "tok1", trap, "trap1", zero, 0, zero); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	actions := &fakeActions{}
	store := NewStore(reg, actions)
	if err := store.Create(ctx, domain.PendingCheck{
		TrapID: "trap1", CheckIndex: 0, Config: domain.SkillCheck{SkillType: "Perception", DC: 12},
		AdvantageMode: domain.AdvantageNormal, CharacterID: "char1", LockedTokenID: "tok1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.Resolve(ctx, p, RollResult{RollerID: "player1", CharacterID: "char1", SkillName: "Perception Check", Total: 14})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Matched || !out.Resolved || !out.Success {
		t.Fatalf("expected a resolved success, got %+v", out)
	}
	if len(actions.ran) != 1 || actions.ran[0] != "!Safe" {
		t.Fatalf("expected success macro to run, got %v", actions.ran)
	}
	if reg.Locked("tok1") {
		t.Fatalf("expected lock released on success")
	}

	obj, _ := p.GetObject(ctx, "trap1", host.ObjectGraphic)
	n, _ := obj.Get("notes")
	cfg, _, _ := notes.Decode("trap1", n.(string))
	if cfg.CurrentUses != 1 {
		t.Fatalf("expected one use depleted, got %d", cfg.CurrentUses)
	}
}

func TestResolveSkillMismatchNeedsArbitration(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"notes": interactionTrapNotes(2, 2)})
	p.Controllers["char1"] = []string{"player1"}

	reg := locks.NewRegistry()
	store := NewStore(reg, &fakeActions{})
	if err := store.Create(ctx, domain.PendingCheck{
		TrapID: "trap1", CheckIndex: 0, Config: domain.SkillCheck{SkillType: "Perception", DC: 12},
		AdvantageMode: domain.AdvantageNormal, CharacterID: "char1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.Resolve(ctx, p, RollResult{RollerID: "player1", CharacterID: "char1", SkillName: "Investigation Check", Total: 14})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.NeedsArbitration {
		t.Fatalf("expected a mismatch to need arbitration, got %+v", out)
	}
	if !store.Reject("char1") {
		t.Fatalf("expected the pending check to survive the mismatch")
	}
}

func TestResolveAdvantageTwoStep(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"notes": interactionTrapNotes(2, 2)})
	p.Controllers["char1"] = []string{"player1"}

	reg := locks.NewRegistry()
	store := NewStore(reg, &fakeActions{})
	if err := store.Create(ctx, domain.PendingCheck{
		TrapID: "trap1", CheckIndex: 0, Config: domain.SkillCheck{SkillType: "Perception", DC: 12},
		AdvantageMode: domain.AdvantageAdvantage, CharacterID: "char1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.Resolve(ctx, p, RollResult{RollerID: "player1", CharacterID: "char1", SkillName: "Perception", Total: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.AwaitingSecond {
		t.Fatalf("expected to await a second roll, got %+v", out)
	}

	out, err = store.Resolve(ctx, p, RollResult{RollerID: "player1", CharacterID: "char1", SkillName: "Perception", Total: 17})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Resolved || !out.Success {
		t.Fatalf("expected the higher of the two rolls (17) to succeed against DC 12, got %+v", out)
	}
}

func TestResolveUnauthorizedRollerDenied(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"notes": interactionTrapNotes(2, 2)})
	p.Controllers["char1"] = []string{"player1"}

	reg := locks.NewRegistry()
	store := NewStore(reg, &fakeActions{})
	if err := store.Create(ctx, domain.PendingCheck{
		TrapID: "trap1", CheckIndex: 0, Config: domain.SkillCheck{SkillType: "Perception", DC: 12},
		AdvantageMode: domain.AdvantageNormal, CharacterID: "char1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := store.Resolve(ctx, p, RollResult{RollerID: "intruder", CharacterID: "char1", SkillName: "Perception", Total: 14})
	if err == nil {
		t.Fatalf("expected an authorization error for a non-controlling roller")
	}
}
