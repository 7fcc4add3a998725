package visual

import (
	"testing"

	"github.com/oakhollow/trapengine/internal/domain"
)

func TestTriggerAuraColor(t *testing.T) {
	cases := []struct {
		name     string
		cfg      domain.TrapConfig
		enabled  bool
		want     AuraColor
	}{
		{"armed standard enabled", domain.TrapConfig{IsArmed: true, CurrentUses: 1, Type: domain.TrapTypeStandard}, true, ColorArmed},
		{"armed interaction enabled", domain.TrapConfig{IsArmed: true, CurrentUses: 1, Type: domain.TrapTypeInteraction}, true, ColorArmedInteraction},
		{"armed paused", domain.TrapConfig{IsArmed: true, CurrentUses: 1, Type: domain.TrapTypeStandard}, false, ColorPaused},
		{"depleted standard", domain.TrapConfig{IsArmed: true, CurrentUses: 0, Type: domain.TrapTypeStandard}, true, ColorDisarmed},
		{"depleted interaction", domain.TrapConfig{IsArmed: true, CurrentUses: 0, Type: domain.TrapTypeInteraction}, true, ColorDisarmedInteraction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := TriggerAuraColor(c.cfg, c.enabled)
			if got != c.want {
				t.Fatalf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestDetectionRadiusClampsToZero(t *testing.T) {
	cfg := domain.TrapConfig{HasDetectionBlock: true, PassiveEnabled: true, PassiveMaxRange: 10}
	if r := DetectionRadius(cfg, 20, false); r != 0 {
		t.Fatalf("expected clamp to zero, got %v", r)
	}
}

func TestDetectionRadiusHiddenIsZero(t *testing.T) {
	cfg := domain.TrapConfig{HasDetectionBlock: true, PassiveEnabled: true, PassiveMaxRange: 30}
	if r := DetectionRadius(cfg, 5, true); r != 0 {
		t.Fatalf("expected zero while auras hidden, got %v", r)
	}
}

func TestBarValues(t *testing.T) {
	cfg := domain.TrapConfig{HasDetectionBlock: true, CurrentUses: 1, MaxUses: 2, PassiveSpotDC: 12}
	s := Derive(cfg, domain.GlobalToggles{TriggersEnabled: true}, 0)
	if s.Bar1Value != "1/2" || s.Bar2Value != "12" {
		t.Fatalf("got %+v", s)
	}
	if s.Bar1PlayerVisible || s.Bar2PlayerVisible {
		t.Fatalf("bars must be GM-only")
	}
}
