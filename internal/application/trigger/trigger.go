// Package trigger implements C5: on a non-trap token's position change,
// scan armed traps on its page, detect a hit via segment/OBB intersection
// falling back to grid-overlap, snap and lock the mover, and run the
// standard or interaction resolution flow (spec §4.5). Grounded on the
// teacher's WorkflowEngine (internal/application/executor/engine.go) for
// the overall "single entry point orchestrating several collaborators"
// shape, generalized from a DAG executor to a per-event trap scan.
package trigger

import (
	"context"

	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"

	"github.com/oakhollow/trapengine/internal/application/locks"
	"github.com/oakhollow/trapengine/internal/application/visual"
)

// MinAABBOverlapFraction is the grid-overlap fallback threshold of §4.5
// step 3.
const MinAABBOverlapFraction = 0.05

// ActionRunner executes a single action string (C7). The trigger engine
// depends on this interface, not a concrete implementation, so it never
// imports the action package directly.
type ActionRunner interface {
	Run(ctx context.Context, platform host.Platform, trap TrapInstance, trappedTokenID, action string) error
}

// Dialogue opens a pending-check dossier for an interaction trap (C6). It
// freezes the configured checks against the locked token's character.
type Dialogue interface {
	Open(ctx context.Context, platform host.Platform, trap TrapInstance, lockedTokenID string) error
}

// TrapInstance is a trap object resolved from the host together with its
// decoded config and map-space OBB, passed to collaborators so they never
// need to re-fetch or re-decode it mid-handler.
type TrapInstance struct {
	ID     string
	PageID string
	OBB    geometry.Rect
	Config domain.TrapConfig
}

// Options carries the page-level geometry constants and the per-call
// short-circuit flags C9 has already evaluated (layer, immune tag, safe
// move state) so this engine stays free of host-object property
// conventions it has no business knowing about.
type Options struct {
	GridSize            float64
	Scale                float64
	MinMovementFraction  float64
	MoverWidth           float64
	MoverHeight          float64

	NonObjectLayer bool // token is not on the host's object layer
	Immune         bool // token carries the ignore-traps tag + status marker
	SafeMove       bool // token is in post-release free-move state
}

// Outcome reports what HandleMovement did, mainly for logging/testing.
type Outcome struct {
	Hit             bool
	TrapID          string
	SnappedPoint    geometry.Point
	Locked          bool
	ResolvedPrimary bool
}

// Engine is C5. One Engine per running process, sharing its Lock Registry
// with C4/C9.
type Engine struct {
	Locks    *locks.Registry
	Actions  ActionRunner
	Dialogue Dialogue
}

// NewEngine builds a Trigger Engine over an existing lock registry.
func NewEngine(reg *locks.Registry, actions ActionRunner, dialogue Dialogue) *Engine {
	return &Engine{Locks: reg, Actions: actions, Dialogue: dialogue}
}

// HandleMovement runs the full §4.5 flow for one moving token's prev->curr
// position change. It returns after the first trap that hits (edge case
// (b): at most one trap triggers per event).
func (e *Engine) HandleMovement(ctx context.Context, platform host.Platform, toggles domain.GlobalToggles, tokenID string, prev, curr geometry.Point, opts Options) (Outcome, error) {
	if !toggles.TriggersEnabled || opts.NonObjectLayer || opts.Immune || opts.SafeMove {
		return Outcome{}, nil
	}
	minFrac := opts.MinMovementFraction
	if minFrac <= 0 {
		minFrac = geometry.DefaultMinMovementFraction
	}
	if geometry.Distance(prev, curr) < minFrac*opts.GridSize {
		return Outcome{}, nil
	}

	tok, err := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
	if err != nil {
		return Outcome{}, trapErrors.NewHostObjectMissing(tokenID, "trigger scan: resolve moving token")
	}
	pageID := tok.PageID()

	traps, err := e.scanTraps(ctx, platform, pageID)
	if err != nil {
		return Outcome{}, err
	}

	for _, trap := range traps {
		if !trap.Config.IsTriggerable() {
			continue
		}
		if trap.Config.Type == domain.TrapTypeInteraction && !trap.Config.MovementTrigger {
			continue
		}

		hitPoint, hit := detectHit(prev, curr, trap.OBB, opts)
		if !hit {
			continue
		}

		snapped := snapPoint(hitPoint, trap, opts.GridSize, func(p geometry.Point) bool { return false })

		if err := tok.Set(ctx, "left", snapped.X); err != nil {
			return Outcome{}, err
		}
		if err := tok.Set(ctx, "top", snapped.Y); err != nil {
			return Outcome{}, err
		}

		if err := e.Locks.Acquire(ctx, platform, tokenID, trap.Config, trap.ID, trap.OBB.Center, trap.OBB.Rotation, snapped); err != nil {
			return Outcome{}, err
		}
		if trapObj, err := platform.GetObject(ctx, trap.ID, host.ObjectGraphic); err == nil {
			if err := visual.ApplyToTrap(ctx, platform, trapObj, toggles); err != nil {
				return Outcome{}, err
			}
		}

		outcome := Outcome{Hit: true, TrapID: trap.ID, SnappedPoint: snapped, Locked: true}

		if trap.Config.Type == domain.TrapTypeStandard {
			// §4.5 step 5: the GM Control Panel is presented by C9/the
			// chat surface; this engine only establishes the lock. Use
			// depletion happens on release via the Lock Registry.
			return outcome, nil
		}

		// Interaction trap.
		if trap.Config.AutoTrigger && trap.Config.PrimaryMacro != "" {
			if err := e.runAction(ctx, platform, trap, tokenID, trap.Config.PrimaryMacro); err != nil {
				return outcome, err
			}
			e.Locks.MarkTriggered(ctx, tokenID)
			if resolved, err := e.resolvePrimaryOnly(ctx, platform, trap, tokenID); err != nil {
				return outcome, err
			} else if resolved {
				outcome.ResolvedPrimary = true
				return outcome, nil
			}
			if e.Dialogue != nil {
				if err := e.Dialogue.Open(ctx, platform, trap, tokenID); err != nil {
					return outcome, err
				}
			}
			return outcome, nil
		}

		// Manual interaction flow (§4.5 step 7): the Interaction Menu
		// itself is chat-surface presentation owned by C9; this engine
		// has done its job once the lock is in place.
		return outcome, nil
	}

	return Outcome{}, nil
}

// resolvePrimaryOnly implements edge case (a): an interaction trap with no
// success/failure macros and no checks resolves immediately once its
// primary has run.
func (e *Engine) resolvePrimaryOnly(ctx context.Context, platform host.Platform, trap TrapInstance, lockedTokenID string) (bool, error) {
	cfg := trap.Config
	if cfg.SuccessMacro != "" || cfg.FailureMacro != "" || len(cfg.Checks) > 0 {
		return false, nil
	}
	if lockedTokenID != "" && e.Locks.Locked(lockedTokenID) {
		if _, err := e.Locks.Release(ctx, platform, lockedTokenID, locks.ReleaseOptions{Commit: true}); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := e.Locks.DepleteUse(ctx, platform, trap.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) runAction(ctx context.Context, platform host.Platform, trap TrapInstance, trappedTokenID, action string) error {
	if e.Actions == nil {
		return trapErrors.NewActionExecutionFailure(action, "no action runner configured")
	}
	return e.Actions.Run(ctx, platform, trap, trappedTokenID, action)
}

// scanTraps loads every graphic on the page that decodes to a trap, in the
// order the host returns them (§9's documented scan order is "host
// order"; nothing downstream depends on a particular one).
func (e *Engine) scanTraps(ctx context.Context, platform host.Platform, pageID string) ([]TrapInstance, error) {
	objs, err := platform.FindObjects(ctx, pageID, host.ObjectGraphic)
	if err != nil {
		return nil, trapErrors.NewHostObjectMissing(pageID, "trigger scan: list page graphics")
	}

	var out []TrapInstance
	for _, obj := range objs {
		rawNotes, _ := obj.Get("notes")
		notesStr, _ := rawNotes.(string)
		cfg, isTrap, err := notes.Decode(obj.ID(), notesStr)
		if err != nil {
			continue // ConfigParseError: recovered locally, treat as not a trap
		}
		if !isTrap || !cfg.HasTriggerBlock {
			continue
		}
		out = append(out, TrapInstance{
			ID:     obj.ID(),
			PageID: pageID,
			OBB:    obbOf(obj),
			Config: cfg,
		})
	}
	return out, nil
}

func obbOf(obj host.Object) geometry.Rect {
	left, _ := obj.Get("left")
	top, _ := obj.Get("top")
	width, _ := obj.Get("width")
	height, _ := obj.Get("height")
	rotation, _ := obj.Get("rotation")
	return geometry.Rect{
		Center:   geometry.Point{X: toFloat(left), Y: toFloat(top)},
		Width:    toFloat(width),
		Height:   toFloat(height),
		Rotation: toFloat(rotation),
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// detectHit implements §4.5 step 3: segment/OBB intersection first, then
// an AABB grid-overlap fallback of at least 5% mover area.
func detectHit(prev, curr geometry.Point, obb geometry.Rect, opts Options) (geometry.Point, bool) {
	if pt, ok := geometry.SegmentOBBIntersect(prev, curr, obb, opts.GridSize, opts.MinMovementFraction); ok {
		return pt, true
	}
	if geometry.AABBOverlapFraction(curr, opts.MoverWidth, opts.MoverHeight, obb) >= MinAABBOverlapFraction {
		return curr, true
	}
	return geometry.Point{}, false
}

// snapPoint applies §4.1's grid-snap rules for the trap's configured
// position mode.
func snapPoint(hitPoint geometry.Point, trap TrapInstance, gridSize float64, occupied func(geometry.Point) bool) geometry.Point {
	switch trap.Config.Position.Mode {
	case domain.PositionCenter:
		return geometry.SnapCenter(trap.OBB, gridSize, occupied)
	case domain.PositionCell:
		return geometry.SnapCell(trap.OBB, trap.Config.Position.CellX, trap.Config.Position.CellY, gridSize, occupied)
	default:
		return geometry.SnapIntersection(hitPoint, trap.OBB, gridSize)
	}
}
