package action

import (
	"context"
	"testing"

	"github.com/oakhollow/trapengine/internal/application/trigger"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/testhost"
)

type fakeArea struct {
	tag    string
	radius float64
	action string
	x, y   float64
	pageID string
}

func (f *fakeArea) ProcessTrigger(ctx context.Context, tag string, radiusFt float64, actionMacro string, isPerToken bool, x, y float64, pageID string) error {
	f.tag, f.radius, f.action, f.x, f.y, f.pageID = tag, radiusFt, actionMacro, x, y, pageID
	return nil
}

func setupTrap(t *testing.T) (*testhost.Platform, string) {
	t.Helper()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"left": 735.0, "top": 735.0})
	return p, "trap1"
}

func TestDispatchPlainChat(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "A pressure plate clicks."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Chats) != 1 || p.Chats[0] != trapID+": A pressure plate clicks." {
		t.Fatalf("expected one chat line, got %v", p.Chats)
	}
}

func TestDispatchCommandInjectsIDs(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "!setattr --name Hero --hp|0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Commands) != 1 {
		t.Fatalf("expected one command, got %v", p.Commands)
	}
	if got, want := p.Commands[0], "!setattr --name Hero --hp|0 --ids "+trapID; got != want {
		t.Fatalf("expected trap id injected into --ids, got %q want %q", got, want)
	}
}

func TestDispatchDollarCommandNormalizesToBang(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "$whisper gm hello --ids fixed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Commands) != 1 || p.Commands[0] != "!whisper gm hello --ids fixed" {
		t.Fatalf("expected $ normalized to ! with an existing --ids left untouched, got %v", p.Commands)
	}
}

func TestDispatchMacroResolvesAndRunsBody(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	p.Macros["Zap"] = "The trap discharges a bolt of lightning."
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "#Zap"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Chats) != 1 || p.Chats[0] != trapID+": The trap discharges a bolt of lightning." {
		t.Fatalf("expected macro body dispatched as chat, got %v", p.Chats)
	}
}

func TestDispatchUnknownMacroWarnsButContinues(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	err := r.RunByID(ctx, p, trapID, "tok1", "#Missing\n!spawnFx")
	if err == nil {
		t.Fatalf("expected a warning error for the unknown macro")
	}
	if len(p.Commands) != 1 {
		t.Fatalf("expected the command lane to still run after the macro failure, got %v", p.Commands)
	}
}

func TestSubstitutesTrapAndTrappedPlaceholders(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "!ping <&trap> <&trapped>"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Commands) != 1 {
		t.Fatalf("expected one command, got %v", p.Commands)
	}
	want := "!ping " + trapID + " tok1 --ids " + trapID
	if p.Commands[0] != want {
		t.Fatalf("expected %q, got %q", want, p.Commands[0])
	}
}

func TestConvertsLegacyFxLine(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "/fx explode-red <&trapped>"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Commands) != 1 {
		t.Fatalf("expected one command, got %v", p.Commands)
	}
	want := "!spawnComplexFx explode-red tok1 --ids " + trapID
	if p.Commands[0] != want {
		t.Fatalf("expected %q, got %q", want, p.Commands[0])
	}
}

func TestTriggerByTagSeparatedAndDispatchedLast(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	area := &fakeArea{}
	r := NewRunner(area, nil)

	body := "The floor rumbles.\n!triggerByTag fire 15 #Burn"
	if err := r.RunByID(ctx, p, trapID, "tok1", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Chats) != 1 {
		t.Fatalf("expected the rest of the body to run first, got %v", p.Chats)
	}
	if area.tag != "fire" || area.radius != 15 {
		t.Fatalf("expected the triggerByTag line dispatched to the area-trigger collaborator, got %+v", area)
	}
}

func TestTriggerByTagMissingCollaboratorWarns(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	err := r.RunByID(ctx, p, trapID, "tok1", "!triggerByTag fire 15 #Burn")
	if err == nil {
		t.Fatalf("expected a warning when no area-trigger collaborator is configured")
	}
}

func TestTriggerByTagMalformedRadiusWarns(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	area := &fakeArea{}
	r := NewRunner(area, nil)

	err := r.RunByID(ctx, p, trapID, "tok1", "!triggerByTag fire notanumber #Burn")
	if err == nil {
		t.Fatalf("expected a warning for a malformed triggerByTag radius")
	}
	if area.tag != "" {
		t.Fatalf("expected no dispatch to the area-trigger collaborator on malformed input")
	}
}

func TestDispatchTemplate(t *testing.T) {
	ctx := context.Background()
	p, trapID := setupTrap(t)
	r := NewRunner(nil, nil)

	if err := r.RunByID(ctx, p, trapID, "tok1", "&{template:default}{{name=Spike Trap}}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Templates) != 1 || p.Templates[0] != "default" {
		t.Fatalf("expected one default template dispatched, got %v", p.Templates)
	}
}

func TestRunUsesTrapInstanceCenterAsTriggerOrigin(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	area := &fakeArea{}
	r := NewRunner(area, nil)

	trap := trigger.TrapInstance{
		ID:     "trap1",
		PageID: "page1",
		OBB:    geometry.Rect{Center: geometry.Point{X: 735, Y: 735}, Width: 70, Height: 70},
	}
	if err := r.Run(ctx, p, trap, "tok1", "!triggerByTag fire 10 #Burn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if area.x != 735 || area.y != 735 || area.pageID != "page1" {
		t.Fatalf("expected the trap instance's own center/page as trigger origin, got %+v", area)
	}
}
