// Package domain holds the trap engine's core value types: Trap Config,
// Lock Record, Pending Check and the small enums they're built from (spec
// §3). These are plain value types with no behavior beyond invariants;
// the components in internal/application operate on them.
package domain

import "github.com/oakhollow/trapengine/internal/domain/geometry"

// TrapType distinguishes the two trap flavors of §3.
type TrapType string

const (
	TrapTypeStandard    TrapType = "standard"
	TrapTypeInteraction TrapType = "interaction"
)

// PositionMode governs which grid cell a locked token snaps to.
type PositionMode string

const (
	PositionIntersection PositionMode = "intersection"
	PositionCenter       PositionMode = "center"
	PositionCell         PositionMode = "cell"
)

// Position is the trap's configured snap target.
type Position struct {
	Mode  PositionMode
	CellX int
	CellY int
}

// SkillCheck is a single {skillType, dc} pair.
type SkillCheck struct {
	SkillType string
	DC        int
}

// TrapConfig is the decoded form of a map object's trigger/detection notes
// blocks (§2 C2, §3). All fields are optional unless noted otherwise in the
// spec; zero values mean "not set" except where a default is documented.
type TrapConfig struct {
	HasTriggerBlock bool
	Type            TrapType
	CurrentUses     int
	MaxUses         int
	IsArmed         bool
	PrimaryMacro    string
	Options         []string
	SuccessMacro    string
	FailureMacro    string
	Checks          []SkillCheck
	MovementTrigger bool
	AutoTrigger     bool
	Position        Position

	// ExtraTrigger preserves keys the codec doesn't recognize, verbatim, so
	// a decode-then-encode round trip never drops unfamiliar content.
	ExtraTrigger map[string]string

	// Detection half (§3). HasDetectionBlock mirrors "isPassive" in the
	// spec's field list: present iff the detection block exists at all.
	HasDetectionBlock   bool
	PassiveSpotDC       int
	PassiveMaxRange     float64
	PassiveNoticePlayer string
	PassiveNoticeGM     string
	PPTokenBarFallback  string
	EnableLuckRoll      bool
	LuckRollDie         string
	ShowDetectionAura   bool
	PassiveEnabled      bool
	Detected            bool

	// ExtraDetection mirrors ExtraTrigger for the detection block.
	ExtraDetection map[string]string
}

// IsTriggerable reports whether C5 should even consider this trap: armed,
// with uses remaining. currentUses==0 forces isArmed false per the
// invariant in §3.
func (c TrapConfig) IsTriggerable() bool {
	return c.HasTriggerBlock && c.IsArmed && c.CurrentUses > 0
}

// ClampUses enforces currentUses <= maxUses (§3 invariant).
func (c *TrapConfig) ClampUses() {
	if c.CurrentUses > c.MaxUses {
		c.CurrentUses = c.MaxUses
	}
	if c.CurrentUses < 0 {
		c.CurrentUses = 0
	}
}

// LockRecord is C4's per-token lock state.
type LockRecord struct {
	TokenID          string
	TrapID           string
	RelativeOffset   geometry.Point
	MacroTriggered   bool
	TrapDataSnapshot TrapConfig
}

// AdvantageMode is the roll-combination mode for a pending check.
type AdvantageMode string

const (
	AdvantageNormal       AdvantageMode = "normal"
	AdvantageAdvantage    AdvantageMode = "advantage"
	AdvantageDisadvantage AdvantageMode = "disadvantage"
)

// PendingCheck is C6's in-flight skill-check dialogue record.
type PendingCheck struct {
	TrapID   string
	CheckIndex int // index into TrapConfig.Checks, or -1 when Custom is true
	Custom   bool
	Config   SkillCheck
	AdvantageMode AdvantageMode
	FirstRoll     *int

	InitiatorID   string
	CharacterID   string
	CharacterName string
	LockedTokenID string
}

// GlobalToggles are the two master gates of §3.
type GlobalToggles struct {
	TriggersEnabled       bool
	DetectionAurasHidden  bool
}
