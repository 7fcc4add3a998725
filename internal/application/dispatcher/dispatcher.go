// Package dispatcher implements C9: routes the three host event families
// (graphic change, door/path change, chat) into the other application
// components in the order spec §4.9 requires, and owns the two global
// toggles every other component reads as an argument. Grounded on the
// teacher's internal/infrastructure/websocket/handler.go (inbound message
// routing to typed handlers) combined with engine.go's per-event
// orchestration order.
package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oakhollow/trapengine/internal/application/dialogue"
	"github.com/oakhollow/trapengine/internal/application/locks"
	"github.com/oakhollow/trapengine/internal/application/passive"
	"github.com/oakhollow/trapengine/internal/application/trigger"
	"github.com/oakhollow/trapengine/internal/application/visual"
	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/events"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// ActionRunner runs a trap's action string by id, used by the "trigger"
// and "marktriggered" command verbs.
type ActionRunner interface {
	RunByID(ctx context.Context, platform host.Platform, trapID, trappedTokenID, action string) error
}

// Recorder receives audit events as the dispatcher produces them. A nil
// Recorder on Dispatcher disables recording entirely; it is never required
// for correctness, only for the audit trail described in SPEC_FULL.md.
type Recorder interface {
	Record(ctx context.Context, ev events.Event)
}

// Dispatcher is C9. One per running process, wired to the shared Lock
// Registry, Trigger Engine, Dialogue Store, and Passive Sensor, plus the
// two global toggles they all read.
type Dispatcher struct {
	Locks    *locks.Registry
	Trigger  *trigger.Engine
	Dialogue *dialogue.Store
	Passive  *passive.Sensor
	Actions  ActionRunner
	Recorder Recorder

	Toggles domain.GlobalToggles
}

// New builds an Event Dispatcher over the already-constructed collaborator
// set.
func New(reg *locks.Registry, trig *trigger.Engine, dlg *dialogue.Store, sensor *passive.Sensor, actions ActionRunner) *Dispatcher {
	d := &Dispatcher{
		Locks:    reg,
		Trigger:  trig,
		Dialogue: dlg,
		Passive:  sensor,
		Actions:  actions,
		Toggles:  domain.GlobalToggles{TriggersEnabled: true},
	}
	// The lock registry and passive sensor both re-derive a trap's visual
	// state on their own mutation paths (a use depleting, a fresh spot);
	// pointing them at this dispatcher's own Toggles field means they read
	// the live value without widening their method signatures.
	if reg != nil {
		reg.Toggles = &d.Toggles
	}
	if sensor != nil {
		sensor.Toggles = &d.Toggles
	}
	return d
}

func (d *Dispatcher) record(ctx context.Context, ev events.Event) {
	if d.Recorder != nil {
		d.Recorder.Record(ctx, ev)
	}
}

// GraphicChange describes what changed about one map object, as already
// diffed by the host bridge (prev vs. current property snapshot). C9
// never re-derives "what changed" itself; it only sequences the response.
type GraphicChange struct {
	TokenID             string
	PageID              string
	PrevPosition        geometry.Point
	CurrPosition        geometry.Point
	PositionChanged     bool
	RotationChanged     bool
	SizeChanged         bool
	NotesChanged        bool
	IgnoreTagToggled    bool
	IgnoreTagNowOn      bool
	TriggerOpts         trigger.Options
}

// HandleGraphicChange implements §4.9's six-step graphic-change order.
func (d *Dispatcher) HandleGraphicChange(ctx context.Context, platform host.Platform, change GraphicChange) error {
	obj, err := platform.GetObject(ctx, change.TokenID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(change.TokenID, "dispatcher: resolve changed object")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(change.TokenID, notesStr)
	if err != nil {
		return nil // ConfigParseError: recovered locally, per §7 item 1
	}

	// Step 1: the movement veto is always first; a locked token can never
	// be observed elsewhere than its lock point once this returns. Veto
	// needs the trap's own current center/rotation, not the moved token's.
	if change.PositionChanged {
		if rec, locked := d.Locks.Get(change.TokenID); locked {
			trapCenter, trapRotation, err := d.trapTransform(ctx, platform, rec.TrapID)
			if err != nil {
				return err
			}
			if veto, err := d.Locks.Veto(ctx, platform, change.TokenID, trapCenter, trapRotation); err != nil {
				return err
			} else if veto {
				return nil
			}
		}
	}

	// Step 2: a non-trap token's position change runs the trigger scan and
	// schedules a passive scan of its new page.
	if !isTrap && change.PositionChanged {
		if d.Passive != nil {
			d.Passive.ScanToken(ctx, platform, change.TokenID, change.PageID)
		}
		if d.Trigger != nil {
			outcome, err := d.Trigger.HandleMovement(ctx, platform, d.Toggles, change.TokenID, change.PrevPosition, change.CurrPosition, change.TriggerOpts)
			if err != nil {
				return err
			}
			if outcome.Hit {
				d.record(ctx, events.LockAcquired(outcome.TrapID, change.TokenID))
				d.record(ctx, events.Triggered(outcome.TrapID, change.TokenID, "", 0))
			}
		}
		return nil
	}

	if !isTrap {
		return nil
	}

	// Step 3: reconcile the {ignoretraps} note tag against the toggled
	// immunity status marker.
	if change.IgnoreTagToggled {
		if err := obj.Set(ctx, "notes", notes.SetIgnoreTag(notesStr, change.IgnoreTagNowOn)); err != nil {
			return err
		}
	}

	// Steps 4-5: notes changing (a new config) or the trap's own size
	// changing (its outer radius, and so its detection aura's map-unit
	// radius) both re-derive and write the full visual state.
	if change.NotesChanged || change.SizeChanged {
		if err := visual.ApplyToTrap(ctx, platform, obj, d.Toggles); err != nil {
			return err
		}
	}

	// Step 6: reproject every locked token when the trap's
	// position/rotation/size changed.
	if change.PositionChanged || change.RotationChanged || change.SizeChanged {
		left, _ := obj.Get("left")
		top, _ := obj.Get("top")
		rotation, _ := obj.Get("rotation")
		center := geometry.Point{X: toFloat(left), Y: toFloat(top)}
		if err := d.Locks.Follow(ctx, platform, change.TokenID, center, toFloat(rotation)); err != nil {
			return err
		}
	}

	return nil
}

// HandleDoorChange implements §4.9's "closed->open triggers a page-wide
// passive scan" rule.
func (d *Dispatcher) HandleDoorChange(ctx context.Context, platform host.Platform, pageID string, closedToOpen bool) {
	if !closedToOpen || d.Passive == nil {
		return
	}
	d.Passive.ScanPage(ctx, platform, pageID)
}

// HandlePathChange implements the legacy door-path open transition, same
// effect as HandleDoorChange.
func (d *Dispatcher) HandlePathChange(ctx context.Context, platform host.Platform, pageID string, closedToOpen bool) {
	d.HandleDoorChange(ctx, platform, pageID, closedToOpen)
}

// HandleRollResult implements §4.9's roll-result routing into C6.
func (d *Dispatcher) HandleRollResult(ctx context.Context, platform host.Platform, roll dialogue.RollResult) error {
	if d.Dialogue == nil {
		return nil
	}
	outcome, err := d.Dialogue.Resolve(ctx, platform, roll)
	if err != nil {
		if _, ok := err.(*trapErrors.AuthorizationDenied); ok {
			return nil // §7 item 3: ignore and continue search
		}
		return err
	}
	if outcome.NeedsArbitration {
		// The pending check's trap id isn't surfaced on Outcome; identify
		// the event by roller/character instead of leaving it unrecorded.
		d.record(ctx, events.CheckMismatched("", roll.CharacterID, roll.SkillName))
		return platform.Whisper(ctx, "gm", fmt.Sprintf("roll from %s needs arbitration: skill name did not match the pending check", roll.RollerID))
	}
	if outcome.Resolved {
		d.record(ctx, events.CheckResolved("", roll.CharacterID, roll.Total, 0, outcome.Success))
	}
	return nil
}

// HandleChatCommand implements §4.9's "!trapsystem <verb> <args…>"
// parse-and-route. speakerID is the posting player's id, used for
// authorization and for routing whispers.
func (d *Dispatcher) HandleChatCommand(ctx context.Context, platform host.Platform, speakerID, line string) error {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 || fields[0] != "!trapsystem" {
		return nil
	}
	if len(fields) < 2 {
		return platform.Whisper(ctx, speakerID, "usage: !trapsystem <verb> <args>")
	}
	verb := strings.ToLower(fields[1])
	args := fields[2:]

	switch verb {
	case "toggle", "rearm":
		return d.cmdToggle(ctx, platform, args)
	case "status":
		return d.cmdStatus(ctx, platform, speakerID, args)
	case "trigger":
		return d.cmdTrigger(ctx, platform, args)
	case "allowmovement":
		return d.cmdAllowMovement(ctx, platform, args)
	case "allowall":
		return d.cmdAllowAll(ctx, platform)
	case "resetall":
		return d.cmdResetAll(ctx, platform)
	case "ignoretraps":
		return d.cmdIgnoreTraps(ctx, platform, args)
	case "enable":
		d.Toggles.TriggersEnabled = true
		return nil
	case "disable":
		d.Toggles.TriggersEnabled = false
		return nil
	case "hidedetection":
		return d.cmdHideDetection(ctx, platform, args, true)
	case "showdetection":
		return d.cmdHideDetection(ctx, platform, args, false)
	case "setpassive":
		return d.cmdSetPassive(ctx, platform, args)
	case "resetdetection":
		return d.cmdResetDetection(ctx, platform, args)
	case "marktriggered":
		return d.cmdMarkTriggered(ctx, platform, args)
	case "resolvemismatch":
		return d.cmdResolveMismatch(ctx, platform, args)
	case "customcheck":
		return d.cmdCustomCheck(ctx, platform, args)
	case "setup", "setupinteraction", "interact", "allow", "fail", "check",
		"rollcheck", "displaydc", "setdc", "selectcharacter", "passivemenu":
		// Menu-driven verbs: their effect is presenting a chat-template
		// menu (command-menu collaborator) rather than a direct state
		// transition this package owns. Left to the host-bridge chat
		// surface, which renders the menu and re-posts a concrete verb
		// (e.g. "setpassive") once the GM picks an option.
		return nil
	default:
		return platform.Whisper(ctx, speakerID, fmt.Sprintf("unknown trapsystem verb %q", verb))
	}
}

func (d *Dispatcher) cmdToggle(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("toggle", "no trap id given")
	}
	trapID := args[0]
	var nowArmed bool
	if err := d.withTrapConfig(ctx, platform, trapID, func(cfg *domain.TrapConfig) error {
		cfg.IsArmed = !cfg.IsArmed
		if cfg.IsArmed && cfg.CurrentUses == 0 {
			cfg.CurrentUses = 1
		}
		nowArmed = cfg.IsArmed
		return nil
	}); err != nil {
		return err
	}
	if nowArmed {
		d.record(ctx, events.Armed(trapID))
	} else {
		d.record(ctx, events.Disarmed(trapID))
	}
	return nil
}

func (d *Dispatcher) cmdStatus(ctx context.Context, platform host.Platform, speakerID string, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("status", "no trap id given")
	}
	obj, err := platform.GetObject(ctx, args[0], host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(args[0], "status command")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(args[0], notesStr)
	if err != nil || !isTrap {
		return trapErrors.NewHostObjectMissing(args[0], "status command: object is not a trap")
	}
	state := visual.Derive(cfg, d.Toggles, 0)
	return platform.Whisper(ctx, "gm", fmt.Sprintf("trap %s: armed=%v uses=%s dc=%s trigger=%s detection=%s",
		args[0], cfg.IsArmed, state.Bar1Value, state.Bar2Value, state.TriggerAura, state.DetectionAura))
}

func (d *Dispatcher) cmdTrigger(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("trigger", "no trap id given")
	}
	obj, err := platform.GetObject(ctx, args[0], host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(args[0], "trigger command")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(args[0], notesStr)
	if err != nil || !isTrap {
		return trapErrors.NewHostObjectMissing(args[0], "trigger command: object is not a trap")
	}
	if cfg.AutoTrigger && cfg.PrimaryMacro != "" && d.Actions != nil {
		return d.Actions.RunByID(ctx, platform, args[0], "", cfg.PrimaryMacro)
	}
	// Manual flow: presenting the control panel is the chat surface's job.
	return nil
}

func (d *Dispatcher) cmdAllowMovement(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("allowmovement", "no token id given")
	}
	rec, wasLocked := d.Locks.Get(args[0])
	if err := d.Locks.ForceRelease(ctx, platform, args[0]); err != nil {
		return err
	}
	if wasLocked {
		d.record(ctx, events.LockReleased(rec.TrapID, args[0], "allowmovement"))
	}
	return nil
}

func (d *Dispatcher) cmdAllowAll(ctx context.Context, platform host.Platform) error {
	for _, id := range d.Locks.AllTokenIDs() {
		rec, _ := d.Locks.Get(id)
		if err := d.Locks.ForceRelease(ctx, platform, id); err != nil {
			return err
		}
		d.record(ctx, events.LockReleased(rec.TrapID, id, "allowall"))
	}
	return nil
}

// cmdResetAll is the supplemented "resetall" verb: allowall plus clearing
// every trap's pending-check/spotted state is out of this dispatcher's
// direct reach (the dialogue store has no bulk-clear; a fresh record per
// character is superseded naturally), so this implements the documented
// subset: force-release every lock.
func (d *Dispatcher) cmdResetAll(ctx context.Context, platform host.Platform) error {
	return d.cmdAllowAll(ctx, platform)
}

func (d *Dispatcher) cmdIgnoreTraps(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("ignoretraps", "no token id given")
	}
	obj, err := platform.GetObject(ctx, args[0], host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(args[0], "ignoretraps command")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	return obj.Set(ctx, "notes", notes.SetIgnoreTag(notesStr, !notes.HasIgnoreTag(notesStr)))
}

func (d *Dispatcher) cmdHideDetection(ctx context.Context, platform host.Platform, args []string, hide bool) error {
	d.Toggles.DetectionAurasHidden = hide
	// An optional duration argument (minutes) would arm a cancelable timer
	// that flips the toggle back; scheduling that timer is owned by the
	// process entry point, which has the only reference to a ticker/timer
	// runtime, not this package.
	return d.reapplyAllTraps(ctx, platform)
}

// reapplyAllTraps re-derives every trap's visual state across every page,
// used when a global toggle (detection auras hidden/shown) changes a
// derivation input that no single trap's own notes reflect.
func (d *Dispatcher) reapplyAllTraps(ctx context.Context, platform host.Platform) error {
	pages, err := platform.AllPages(ctx)
	if err != nil {
		return err
	}
	for _, pageID := range pages {
		objs, err := platform.FindObjects(ctx, pageID, host.ObjectGraphic)
		if err != nil {
			return err
		}
		for _, obj := range objs {
			if err := visual.ApplyToTrap(ctx, platform, obj, d.Toggles); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) cmdSetPassive(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) < 2 {
		return trapErrors.NewActionExecutionFailure("setpassive", "expected property, trapId[, value]")
	}
	property := strings.ToLower(args[0])
	trapID := args[1]
	value := ""
	if len(args) > 2 {
		value = strings.Join(args[2:], " ")
	}
	return d.withTrapConfig(ctx, platform, trapID, func(cfg *domain.TrapConfig) error {
		switch property {
		case "spotdc":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return trapErrors.NewConfigParseError(trapID, fmt.Sprintf("spotdc %q is not a non-negative integer", value))
			}
			cfg.PassiveSpotDC = n
		case "range":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || f < 0 {
				return trapErrors.NewConfigParseError(trapID, fmt.Sprintf("range %q is not a non-negative number", value))
			}
			cfg.PassiveMaxRange = f
		case "noticeplayer":
			cfg.PassiveNoticePlayer = value
		case "noticegm":
			cfg.PassiveNoticeGM = value
		case "enabled":
			cfg.PassiveEnabled = value == "true"
		}
		return nil
	})
}

func (d *Dispatcher) cmdResetDetection(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("resetdetection", "no trap id given")
	}
	trapID := args[0]
	if d.Passive != nil {
		d.Passive.ClearTrap(trapID)
	}
	return d.withTrapConfig(ctx, platform, trapID, func(cfg *domain.TrapConfig) error {
		cfg.Detected = false
		return nil
	})
}

func (d *Dispatcher) cmdMarkTriggered(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) < 3 {
		return trapErrors.NewActionExecutionFailure("marktriggered", "expected tokenId trapId primary|optionN")
	}
	tokenID, trapID, which := args[0], args[1], args[2]

	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(trapID, "marktriggered command")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(trapID, notesStr)
	if err != nil || !isTrap {
		return trapErrors.NewHostObjectMissing(trapID, "marktriggered: object is not a trap")
	}

	action := selectMarkTriggeredAction(cfg, which)
	if action == "" {
		return trapErrors.NewActionExecutionFailure("marktriggered", fmt.Sprintf("no such option %q", which))
	}

	if d.Actions != nil {
		if err := d.Actions.RunByID(ctx, platform, trapID, tokenID, action); err != nil {
			return err
		}
	}
	d.Locks.MarkTriggered(ctx, tokenID)
	depleted, err := d.Locks.Release(ctx, platform, tokenID, locks.ReleaseOptions{Commit: true})
	if err != nil {
		return err
	}
	d.record(ctx, events.LockReleased(trapID, tokenID, "marktriggered"))
	if depleted {
		d.record(ctx, events.UsesDepleted(trapID))
	}
	return nil
}

func selectMarkTriggeredAction(cfg domain.TrapConfig, which string) string {
	if which == "primary" {
		return cfg.PrimaryMacro
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(which), "option"))
	if err != nil || idx < 1 || idx > len(cfg.Options) {
		return ""
	}
	return cfg.Options[idx-1]
}

func (d *Dispatcher) cmdResolveMismatch(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) == 0 {
		return trapErrors.NewActionExecutionFailure("resolvemismatch", "no character id given")
	}
	if d.Dialogue == nil || !d.Dialogue.Reject(args[0]) {
		return trapErrors.NewActionExecutionFailure("resolvemismatch", "no pending check for that character")
	}
	return nil
}

func (d *Dispatcher) cmdCustomCheck(ctx context.Context, platform host.Platform, args []string) error {
	if len(args) < 4 {
		return trapErrors.NewActionExecutionFailure("customcheck", "expected trapId skillType dc tokenId")
	}
	trapID, skillType := args[0], args[1]
	dc, err := strconv.Atoi(args[2])
	if err != nil {
		return trapErrors.NewActionExecutionFailure("customcheck", "dc must be an integer")
	}
	lockedTokenID := args[3]
	characterID := ""
	if tok, err := platform.GetObject(ctx, lockedTokenID, host.ObjectGraphic); err == nil {
		if v, ok := tok.Get("represents"); ok {
			characterID, _ = v.(string)
		}
	}
	if d.Dialogue == nil {
		return nil
	}
	if err := d.Dialogue.CreateCustom(ctx, trapID, "", characterID, "", lockedTokenID, domain.SkillCheck{SkillType: skillType, DC: dc}, domain.AdvantageNormal); err != nil {
		return err
	}
	d.record(ctx, events.CheckCreated(trapID, lockedTokenID, skillType, dc))
	return nil
}

// Bootstrap cross-checks every lock record recovered from storage against
// the {!traplocked:<trapId>} marker actually present on each token's live
// notes, releasing any lock whose marker has gone stale (edited by hand, or
// left over from a trap that was deleted) while the process was down. It
// can only run once a host connection exists, so it's invoked from
// hostbridge.Hub's OnConnect hook rather than at process startup. Returns
// the ids of every token whose stale lock was reconciled away.
func (d *Dispatcher) Bootstrap(ctx context.Context, platform host.Platform) ([]string, error) {
	var reconciled []string
	for _, tokenID := range d.Locks.AllTokenIDs() {
		rec, ok := d.Locks.Get(tokenID)
		if !ok {
			continue
		}
		tok, err := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
		if err != nil {
			continue // unreachable token: leave the record for a later follow/veto to drop
		}
		rawNotes, _ := tok.Get("notes")
		notesStr, _ := rawNotes.(string)
		liveTrapID, ok := notes.LockedTrapID(notesStr)
		if ok && liveTrapID == rec.TrapID {
			continue // marker agrees with the recovered record
		}
		if err := d.Locks.ForceRelease(ctx, platform, tokenID); err != nil {
			return reconciled, err
		}
		d.record(ctx, events.LockReleased(rec.TrapID, tokenID, "bootstrap-reconcile"))
		reconciled = append(reconciled, tokenID)
	}
	return reconciled, nil
}

// trapTransform resolves a trap object's current center and rotation, used
// by the lock veto and Follow reprojection.
func (d *Dispatcher) trapTransform(ctx context.Context, platform host.Platform, trapID string) (geometry.Point, float64, error) {
	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return geometry.Point{}, 0, trapErrors.NewHostObjectMissing(trapID, "dispatcher: resolve trap transform")
	}
	left, _ := obj.Get("left")
	top, _ := obj.Get("top")
	rotation, _ := obj.Get("rotation")
	return geometry.Point{X: toFloat(left), Y: toFloat(top)}, toFloat(rotation), nil
}

func (d *Dispatcher) withTrapConfig(ctx context.Context, platform host.Platform, trapID string, mutate func(cfg *domain.TrapConfig) error) error {
	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(trapID, "dispatcher: resolve trap by id")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(trapID, notesStr)
	if err != nil {
		return err
	}
	if !isTrap {
		return trapErrors.NewHostObjectMissing(trapID, "dispatcher: object is not a trap")
	}
	if err := mutate(&cfg); err != nil {
		return err
	}
	if err := obj.Set(ctx, "notes", notes.Encode(notesStr, cfg)); err != nil {
		return err
	}
	state := visual.Derive(cfg, d.Toggles, visual.OuterRadius(ctx, platform, obj))
	return visual.Apply(ctx, obj, state)
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
