package trigger

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

type fakeRunner struct {
	ran []string
}

func (f *fakeRunner) Run(ctx context.Context, platform host.Platform, trap TrapInstance, trappedTokenID, action string) error {
	f.ran = append(f.ran, action)
	return nil
}

type fakeDialogue struct {
	opened bool
}

func (f *fakeDialogue) Open(ctx context.Context, platform host.Platform, trap TrapInstance, lockedTokenID string) error {
	f.opened = true
	return nil
}

func standardTrapNotes() string {
	return notes.Encode("", domain.TrapConfig{
		HasTriggerBlock: true,
		Type:            domain.TrapTypeStandard,
		CurrentUses:     1, MaxUses: 1,
		IsArmed:         true,
		PrimaryMacro:    "#Explode",
		MovementTrigger: true,
		AutoTrigger:     true,
		Position:        domain.Position{Mode: domain.PositionIntersection},
	})
}

// setupPage places a 1x1 trap centered exactly on a grid cell center
// ((10.5, 10.5) x gridSize 70 = (735,735)), so the intersection-snap
// target is unambiguous.
func setupPage(t *testing.T, trapNotes string) (*testhost.Platform, string) {
	t.Helper()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{
		"notes": trapNotes, "left": 735.0, "top": 735.0, "width": 70.0, "height": 70.0, "rotation": 0.0,
	})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{"notes": "", "left": 595.0, "top": 735.0})
	return p, "page1"
}

func TestHandleMovementStandardTrapLocksToken(t *testing.T) {
	ctx := context.Background()
	p, _ := setupPage(t, standardTrapNotes())
	reg := locks.NewRegistry()
	eng := NewEngine(reg, &fakeRunner{}, &fakeDialogue{})

	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: true}, "tok1",
		geometry.Point{X: 595, Y: 735}, geometry.Point{X: 805, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Hit || out.TrapID != "trap1" {
		t.Fatalf("expected a hit on trap1, got %+v", out)
	}
	if out.SnappedPoint != (geometry.Point{X: 735, Y: 735}) {
		t.Fatalf("expected snap to (735,735), got %v", out.SnappedPoint)
	}
	if !reg.Locked("tok1") {
		t.Fatalf("expected token locked")
	}
}

func TestHandleMovementMicroMoveNeverTriggers(t *testing.T) {
	ctx := context.Background()
	p, _ := setupPage(t, standardTrapNotes())
	reg := locks.NewRegistry()
	eng := NewEngine(reg, &fakeRunner{}, &fakeDialogue{})

	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: true}, "tok1",
		geometry.Point{X: 729, Y: 735}, geometry.Point{X: 736, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Hit {
		t.Fatalf("expected no hit for a micro-move, got %+v", out)
	}
}

func TestHandleMovementDisabledTogglesShortCircuit(t *testing.T) {
	ctx := context.Background()
	p, _ := setupPage(t, standardTrapNotes())
	reg := locks.NewRegistry()
	eng := NewEngine(reg, &fakeRunner{}, &fakeDialogue{})

	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: false}, "tok1",
		geometry.Point{X: 595, Y: 735}, geometry.Point{X: 805, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Hit {
		t.Fatalf("expected no hit while triggers are disabled")
	}
}

func TestHandleMovementInteractionPrimaryOnlyResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	trapNotes := notes.Encode("", domain.TrapConfig{
		HasTriggerBlock: true,
		Type:            domain.TrapTypeInteraction,
		CurrentUses:     1, MaxUses: 1,
		IsArmed:         true,
		PrimaryMacro:    "#Zap",
		MovementTrigger: true,
		AutoTrigger:     true,
		Position:        domain.Position{Mode: domain.PositionIntersection},
	})
	p, _ := setupPage(t, trapNotes)
	reg := locks.NewRegistry()
	runner := &fakeRunner{}
	dlg := &fakeDialogue{}
	eng := NewEngine(reg, runner, dlg)

	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: true}, "tok1",
		geometry.Point{X: 595, Y: 735}, geometry.Point{X: 805, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.ResolvedPrimary {
		t.Fatalf("expected the primary-only trap to resolve immediately, got %+v", out)
	}
	if len(runner.ran) != 1 || runner.ran[0] != "#Zap" {
		t.Fatalf("expected primary macro to run once, got %v", runner.ran)
	}
	if dlg.opened {
		t.Fatalf("primary-only traps must not open a dialogue")
	}
	if reg.Locked("tok1") {
		t.Fatalf("expected lock released after immediate resolution")
	}

	obj, _ := p.GetObject(ctx, "trap1", host.ObjectGraphic)
	n, _ := obj.Get("notes")
	cfg, _, _ := notes.Decode("trap1", n.(string))
	if cfg.CurrentUses != 0 {
		t.Fatalf("expected a use depleted, got currentUses=%d", cfg.CurrentUses)
	}
}

func TestHandleMovementInteractionWithChecksOpensDialogue(t *testing.T) {
	ctx := context.Background()
	trapNotes := notes.Encode("", domain.TrapConfig{
		HasTriggerBlock: true,
		Type:            domain.TrapTypeInteraction,
		CurrentUses:     2, MaxUses: 2,
		IsArmed:         true,
		PrimaryMacro:    "#Warn",
		SuccessMacro:    "!Safe",
		FailureMacro:    "!Hurt",
		Checks:          []domain.SkillCheck{{SkillType: "Perception", DC: 12}},
		MovementTrigger: true,
		AutoTrigger:     true,
		Position:        domain.Position{Mode: domain.PositionIntersection},
	})
	p, _ := setupPage(t, trapNotes)
	reg := locks.NewRegistry()
	dlg := &fakeDialogue{}
	eng := NewEngine(reg, &fakeRunner{}, dlg)

	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: true}, "tok1",
		geometry.Point{X: 595, Y: 735}, geometry.Point{X: 805, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ResolvedPrimary {
		t.Fatalf("a trap with checks must not resolve immediately")
	}
	if !dlg.opened {
		t.Fatalf("expected a dialogue to be opened")
	}
	if !reg.Locked("tok1") {
		t.Fatalf("expected the token to remain locked pending the check")
	}
}

func TestHandleMovementOneTrapPerEvent(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{
		"notes": standardTrapNotes(), "left": 735.0, "top": 735.0, "width": 70.0, "height": 70.0, "rotation": 0.0,
	})
	p.AddObject("trap2", host.ObjectGraphic, "page1", map[string]any{
		"notes": standardTrapNotes(), "left": 735.0, "top": 735.0, "width": 70.0, "height": 70.0, "rotation": 0.0,
	})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{"notes": "", "left": 595.0, "top": 735.0})

	reg := locks.NewRegistry()
	eng := NewEngine(reg, &fakeRunner{}, &fakeDialogue{})
	opts := Options{GridSize: 70, MinMovementFraction: 0.3, MoverWidth: 70, MoverHeight: 70}
	out, err := eng.HandleMovement(ctx, p, domain.GlobalToggles{TriggersEnabled: true}, "tok1",
		geometry.Point{X: 595, Y: 735}, geometry.Point{X: 805, Y: 735}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Hit {
		t.Fatalf("expected exactly one trap to hit")
	}
	locked := reg.AllTokenIDs()
	if len(locked) != 1 {
		t.Fatalf("expected exactly one lock record, got %d", len(locked))
	}
}
