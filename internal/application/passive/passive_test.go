package passive

import (
	"context"
	"testing"
	"time"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
	"github.com/oakhollow/trapengine/internal/testhost"
)

type fakeLOS struct {
	blocked bool
}

func (f *fakeLOS) Blocked(ctx context.Context, pageID string, from, to geometry.Point) (bool, error) {
	return f.blocked, nil
}

func detectionNotes(spotDC int, maxRange float64) string {
	return notes.Encode("", domain.TrapConfig{
		HasDetectionBlock:   true,
		PassiveEnabled:      true,
		PassiveSpotDC:       spotDC,
		PassiveMaxRange:     maxRange,
		PassiveNoticePlayer: "{charName} notices something near {trapName}.",
		PassiveNoticeGM:     "{charName} spotted {trapName} (PP {charPP} vs DC {trapDC}).",
	})
}

func setupPair(t *testing.T, spotDC int, maxRange float64) (*testhost.Platform, string, string) {
	t.Helper()
	p := testhost.New()
	p.GridSizes["page1"] = 70
	p.Scales["page1"] = 5

	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{
		"left":  700.0,
		"top":   700.0,
		"name":  "Spike Trap",
		"notes": detectionNotes(spotDC, maxRange),
	})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{
		"left":       700.0,
		"top":        700.0,
		"represents": "char1",
	})
	p.Controllers["char1"] = []string{"player1"}
	p.SheetItems["char1"] = map[string]string{"character_name": "Rowan"}

	return p, "trap1", "tok1"
}

func TestSingleCheckSpotsAndMarksDetected(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 12, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "15"
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); !already {
		t.Fatalf("expected the pair to be recorded as spotted, keyed by character id")
	}

	trapObj, _ := p.GetObject(ctx, trapID, host.ObjectGraphic)
	raw, _ := trapObj.Get("notes")
	cfg, isTrap, err := notes.Decode(trapID, raw.(string))
	if err != nil || !isTrap || !cfg.Detected {
		t.Fatalf("expected detected:[on] written back, got cfg=%+v err=%v", cfg, err)
	}

	if len(p.Whispers["player1"]) != 1 {
		t.Fatalf("expected one player whisper, got %v", p.Whispers)
	}
	if len(p.Whispers["gm"]) != 1 {
		t.Fatalf("expected one GM whisper, got %v", p.Whispers)
	}
}

func TestSingleCheckBelowDCStaysUnspotted(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 20, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "10"
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); already {
		t.Fatalf("expected the pair to stay unspotted below DC")
	}
	if len(p.Whispers) != 0 {
		t.Fatalf("expected no whispers sent, got %v", p.Whispers)
	}
}

func TestSingleCheckAlreadySpottedSkips(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 12, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "15"
	s := NewSensor(nil)
	s.spotted.Store(spottedKey(trapID, "char1"), true)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Whispers) != 0 {
		t.Fatalf("expected no whispers for an already-spotted pair, got %v", p.Whispers)
	}
}

func TestSingleCheckNoDetectionBlockNoOp(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{"left": 700.0, "top": 700.0})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{"left": 700.0, "top": 700.0, "represents": "char1"})
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, "tok1", "trap1", "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Whispers) != 0 {
		t.Fatalf("expected no whispers when there is no detection block, got %v", p.Whispers)
	}
}

func TestSingleCheckBlockedLineOfSightSkips(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 12, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "20"
	s := NewSensor(&fakeLOS{blocked: true})

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); already {
		t.Fatalf("expected line of sight to block the spot")
	}
}

func TestSingleCheckOutOfRangeSkips(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 1, 5)
	p.SheetItems["char1"]["passive_wisdom"] = "30"
	obj, _ := p.GetObject(ctx, "tok1", host.ObjectGraphic)
	_ = obj.Set(ctx, "left", 2000.0)
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); already {
		t.Fatalf("expected an out-of-range observer to not be spotted")
	}
}

func TestSingleCheckFallsBackToAttribute(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 10, 100)
	p.Attributes["char1"] = map[string]string{"passive_wisdom": "14"}
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); !already {
		t.Fatalf("expected the attribute fallback to resolve a passive perception")
	}
}

func TestSingleCheckTokenBarFallbackWhenNoCharacter(t *testing.T) {
	ctx := context.Background()
	p := testhost.New()
	p.GridSizes["page1"] = 70
	p.Scales["page1"] = 5
	p.AddObject("trap1", host.ObjectGraphic, "page1", map[string]any{
		"left": 700.0, "top": 700.0, "name": "Spike Trap",
		"notes": notes.Encode("", domain.TrapConfig{
			HasDetectionBlock: true, PassiveEnabled: true, PassiveSpotDC: 10, PassiveMaxRange: 100,
			PPTokenBarFallback: "bar1",
		}),
	})
	p.AddObject("tok1", host.ObjectGraphic, "page1", map[string]any{"left": 700.0, "top": 700.0})
	p.TokenBars["tok1"] = map[string]int{"bar1": 16}
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, "tok1", "trap1", "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey("trap1", "tok1")); !already {
		t.Fatalf("expected the token-bar fallback to resolve a passive perception")
	}
}

func TestSingleCheckLuckRollAddsToPerception(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 18, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "14"
	p.NextRandom = 5
	p.AddObject(trapID, host.ObjectGraphic, "page1", map[string]any{
		"left": 700.0, "top": 700.0, "name": "Spike Trap",
		"notes": notes.Encode("", domain.TrapConfig{
			HasDetectionBlock: true, PassiveEnabled: true, PassiveSpotDC: 18, PassiveMaxRange: 100,
			EnableLuckRoll: true, LuckRollDie: "1d6",
		}),
	})
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already, _ := s.spotted.Load(spottedKey(trapID, "char1")); !already {
		t.Fatalf("expected the luck roll (14+5=19) to clear an 18 DC")
	}
}

func TestSingleCheckNoNonGMControllerWhispersGM(t *testing.T) {
	ctx := context.Background()
	p, trapID, observerID := setupPair(t, 10, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "15"
	p.Controllers["char1"] = []string{"gmPlayer"}
	p.GMs["gmPlayer"] = true
	s := NewSensor(nil)

	if err := s.singleCheck(ctx, p, observerID, trapID, "page1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Whispers["gm"]) < 1 {
		t.Fatalf("expected at least the GM notice whisper, got %v", p.Whispers)
	}
}

func TestDebouncedSuppressesRepeatWithinWindow(t *testing.T) {
	s := NewSensor(nil)
	s.DebounceWindow = time.Minute

	if s.debounced("char1", "same message") {
		t.Fatalf("first message must not be debounced")
	}
	if !s.debounced("char1", "same message") {
		t.Fatalf("identical repeat within the window must be debounced")
	}
	if s.debounced("char1", "different message") {
		t.Fatalf("a distinct message must not be suppressed by an unrelated debounce entry")
	}
}

func TestRollDieParsesAndSums(t *testing.T) {
	p := testhost.New()
	p.NextRandom = 4
	ctx := context.Background()

	if got := rollDie(ctx, p, "2d6"); got != 8 {
		t.Fatalf("expected 2d6 with a fixed fake roll of 4 to sum to 8, got %d", got)
	}
	if got := rollDie(ctx, p, "notadie"); got != 0 {
		t.Fatalf("expected a malformed die spec to resolve to 0, got %d", got)
	}
}

func TestRenderSubstitutesKnownPlaceholdersLeavesUnknown(t *testing.T) {
	out := render("{charName} spots {trapName}, unknown={missing}", map[string]string{
		"charName": "Rowan",
		"trapName": "Spike Trap",
	})
	want := "Rowan spots Spike Trap, unknown={missing}"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestScanPageRunsFullCrossProduct(t *testing.T) {
	ctx := context.Background()
	p, trapID, _ := setupPair(t, 12, 100)
	p.SheetItems["char1"]["passive_wisdom"] = "15"
	s := NewSensor(nil)

	s.ScanPage(ctx, p, "page1")
	waitForSpot(t, s, trapID, "char1")
}

func waitForSpot(t *testing.T, s *Sensor, trapID, ledgerID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if already, _ := s.spotted.Load(spottedKey(trapID, ledgerID)); already {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected ScanPage's async scan to eventually mark the pair spotted")
}
