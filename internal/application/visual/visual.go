// Package visual implements C3: deriving aura colors/radii and token-bar
// values from Trap Config and the two global toggles (spec §4.3). Visual
// state is never stored; it's recomputed from domain.TrapConfig on every
// call, grounded on the teacher's node_state.go pattern of deriving display
// state from a status enum plus flags.
package visual

import (
	"context"
	"strconv"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// Host object property names a derived State is written to. Aura 1 has no
// managed radius (§4.3 only derives aura 2's), so it is never set here.
const (
	PropAura1Color  = "aura1_color"
	PropAura2Color  = "aura2_color"
	PropAura2Radius = "aura2_radius"
	PropBar1Value   = "bar1_value"
	PropBar2Value   = "bar2_value"
	PropShowBar1    = "showplayers_bar1"
	PropShowBar2    = "showplayers_bar2"
)

// AuraColor names the fixed palette of §4.3.
type AuraColor string

const (
	ColorArmed                  AuraColor = "ARMED"
	ColorArmedInteraction       AuraColor = "ARMED_INTERACTION"
	ColorPaused                 AuraColor = "PAUSED"
	ColorDisarmed               AuraColor = "DISARMED"
	ColorDisarmedInteraction    AuraColor = "DISARMED_INTERACTION"
	ColorDetection              AuraColor = "DETECTION"
	ColorDetected               AuraColor = "DETECTED"
	ColorDisarmedUndetected     AuraColor = "DISARMED_UNDETECTED"
	ColorDisarmedDetected       AuraColor = "DISARMED_DETECTED"
	ColorPassiveDisabled        AuraColor = "PASSIVE_DISABLED"
	ColorDetectionOff           AuraColor = "DETECTION_OFF"
)

// State is the full derived visual state for one trap object.
type State struct {
	TriggerAura   AuraColor
	DetectionAura AuraColor
	// DetectionRadius is in map units; zero when hidden or the trap has no
	// configured range.
	DetectionRadius float64
	Bar1Value       string // currentUses/maxUses
	Bar2Value       string // passiveSpotDC
	Bar1PlayerVisible bool
	Bar2PlayerVisible bool
}

// hasUses reports whether the trap has any uses left, treating the zero
// value (no trigger block) as "no uses" rather than panicking on MaxUses==0.
func hasUses(cfg domain.TrapConfig) bool {
	return cfg.CurrentUses > 0
}

// TriggerAuraColor implements the color rules in §4.3's first bullet list.
func TriggerAuraColor(cfg domain.TrapConfig, triggersEnabled bool) AuraColor {
	interaction := cfg.Type == domain.TrapTypeInteraction
	armedWithUses := cfg.IsArmed && hasUses(cfg)

	switch {
	case armedWithUses && triggersEnabled && interaction:
		return ColorArmedInteraction
	case armedWithUses && triggersEnabled:
		return ColorArmed
	case armedWithUses && !triggersEnabled:
		return ColorPaused
	case interaction:
		return ColorDisarmedInteraction
	default:
		return ColorDisarmed
	}
}

// DetectionAuraColor implements §4.3's detection aura color rules.
func DetectionAuraColor(cfg domain.TrapConfig, triggersEnabled bool) AuraColor {
	if !cfg.HasDetectionBlock {
		return ColorDetectionOff
	}
	if !cfg.PassiveEnabled {
		return ColorPassiveDisabled
	}

	armed := cfg.IsArmed && hasUses(cfg)
	switch {
	case cfg.Detected && armed:
		return ColorDetected
	case cfg.Detected && !armed:
		return ColorDisarmedDetected
	case !cfg.Detected && armed:
		return ColorDetection
	default:
		return ColorDisarmedUndetected
	}
}

// tokenOuterRadius is the outer radius (in map units) the detection aura
// must clear so it never starts inside the trap's own token footprint.
func DetectionRadius(cfg domain.TrapConfig, tokenOuterRadius float64, detectionAurasHidden bool) float64 {
	if detectionAurasHidden {
		return 0
	}
	if !cfg.HasDetectionBlock || !cfg.PassiveEnabled {
		return 0
	}
	r := cfg.PassiveMaxRange - tokenOuterRadius
	if r < 0 {
		return 0
	}
	return r
}

// Derive computes the full visual state for a trap.
func Derive(cfg domain.TrapConfig, toggles domain.GlobalToggles, tokenOuterRadius float64) State {
	return State{
		TriggerAura:       TriggerAuraColor(cfg, toggles.TriggersEnabled),
		DetectionAura:     DetectionAuraColor(cfg, toggles.TriggersEnabled),
		DetectionRadius:   DetectionRadius(cfg, tokenOuterRadius, toggles.DetectionAurasHidden),
		Bar1Value:         formatUses(cfg),
		Bar2Value:         formatDC(cfg),
		Bar1PlayerVisible: false,
		Bar2PlayerVisible: false,
	}
}

func formatUses(cfg domain.TrapConfig) string {
	return strconv.Itoa(cfg.CurrentUses) + "/" + strconv.Itoa(cfg.MaxUses)
}

func formatDC(cfg domain.TrapConfig) string {
	if !cfg.HasDetectionBlock {
		return ""
	}
	return strconv.Itoa(cfg.PassiveSpotDC)
}

// Apply writes a derived State onto a host object's aura and bar
// properties. It's the only place outside tests that should call
// host.Object.Set with these property names.
func Apply(ctx context.Context, obj host.Object, state State) error {
	if err := obj.Set(ctx, PropAura1Color, string(state.TriggerAura)); err != nil {
		return err
	}
	if err := obj.Set(ctx, PropAura2Color, string(state.DetectionAura)); err != nil {
		return err
	}
	if err := obj.Set(ctx, PropAura2Radius, state.DetectionRadius); err != nil {
		return err
	}
	if err := obj.Set(ctx, PropBar1Value, state.Bar1Value); err != nil {
		return err
	}
	if err := obj.Set(ctx, PropBar2Value, state.Bar2Value); err != nil {
		return err
	}
	if err := obj.Set(ctx, PropShowBar1, state.Bar1PlayerVisible); err != nil {
		return err
	}
	return obj.Set(ctx, PropShowBar2, state.Bar2PlayerVisible)
}

// OuterRadius converts a trap token's own footprint to map units, the value
// DetectionRadius subtracts so a detection aura never starts inside the
// trap's own token.
func OuterRadius(ctx context.Context, platform host.Platform, obj host.Object) float64 {
	width, _ := obj.Get("width")
	height, _ := obj.Get("height")
	w := toFloat(width)
	h := toFloat(height)
	longest := w
	if h > longest {
		longest = h
	}
	grid, err := platform.GridSize(ctx, obj.PageID())
	if err != nil || grid <= 0 {
		return 0
	}
	scale, err := platform.Scale(ctx, obj.PageID())
	if err != nil {
		return 0
	}
	return (longest / 2) / grid * scale
}

// ApplyToTrap re-derives and writes the visual state for a single trap
// object from its current notes and the live global toggles. It's a no-op
// for objects whose notes don't decode as a trap.
func ApplyToTrap(ctx context.Context, platform host.Platform, obj host.Object, toggles domain.GlobalToggles) error {
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(obj.ID(), notesStr)
	if err != nil || !isTrap {
		return nil
	}
	state := Derive(cfg, toggles, OuterRadius(ctx, platform, obj))
	return Apply(ctx, obj, state)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
