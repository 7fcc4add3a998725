// Package passive implements C8: the per-(observer, trap) passive
// perception gate chain (detection block, not-already-spotted, line of
// sight, range, perception resolution, optional luck roll), the spotted
// ledger and notice debounce queue, and the scan scheduling hooks (spec
// §4.8). Grounded on internal/infrastructure/monitoring's async,
// fire-and-forget observer pattern for the scan scheduling shape; uses
// xsync.MapOf for the ledgers because §5 explicitly carves this subsystem
// out of the engine's otherwise single-threaded-cooperative model.
package passive

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/oakhollow/trapengine/internal/application/action"
	"github.com/oakhollow/trapengine/internal/application/visual"
	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// DefaultDebounceWindow is the player-message debounce window of §4.8,
// used when Sensor.DebounceWindow is zero.
const DefaultDebounceWindow = 100 * time.Second

// LineOfSight abstracts the host's wall/door/window dynamic-lighting
// geometry query, so this package never needs to know the host's concrete
// barrier representation.
type LineOfSight interface {
	// Blocked reports whether the straight segment from->to on pageID
	// crosses a non-transparent wall segment or a closed door. Windows are
	// passthrough and must not be reported as blocking.
	Blocked(ctx context.Context, pageID string, from, to geometry.Point) (bool, error)
}

type debounceEntry struct {
	text string
	at   time.Time
}

type debounceBucket struct {
	mu      sync.Mutex
	entries []debounceEntry
}

// Sensor is C8. One Sensor per running process, its ledgers shared across
// every scan goroutine.
type Sensor struct {
	LOS            LineOfSight
	DebounceWindow time.Duration

	// Embellisher optionally rewrites a player-facing notice before it's
	// whispered out; nil means the rendered template text goes out as-is.
	Embellisher action.NoticeEmbellisher
	Style       string

	// Toggles points at the owning Dispatcher's live global toggles, wired
	// by dispatcher.New, so a fresh spot can re-derive the trap's visual
	// state without widening ScanToken/ScanPage's signatures. Nil is safe.
	Toggles *domain.GlobalToggles

	spotted  *xsync.MapOf[string, bool]
	debounce *xsync.MapOf[string, *debounceBucket]
}

func (s *Sensor) toggles() domain.GlobalToggles {
	if s.Toggles == nil {
		return domain.GlobalToggles{}
	}
	return *s.Toggles
}

// NewSensor builds an empty Passive Sensor. los may be nil, in which case
// every pair passes the line-of-sight gate (useful for pages with no
// dynamic-lighting walls configured).
func NewSensor(los LineOfSight) *Sensor {
	return &Sensor{
		LOS:      los,
		spotted:  xsync.NewMapOf[string, bool](),
		debounce: xsync.NewMapOf[string, *debounceBucket](),
	}
}

func spottedKey(trapID, observerID string) string {
	return trapID + "\x00" + observerID
}

// Get reports whether (trapID, observerID) is already recorded as
// spotted, mainly for tests and diagnostics.
func (s *Sensor) Get(trapID, observerID string) (bool, bool) {
	return s.spotted.Load(spottedKey(trapID, observerID))
}

// ClearTrap drops every spotted-ledger entry for trapID, implementing the
// "resetdetection" command's ledger-clear half (the caller is responsible
// for clearing the persisted detected:[on] flag via notes.Encode).
func (s *Sensor) ClearTrap(trapID string) {
	prefix := trapID + "\x00"
	var stale []string
	s.spotted.Range(func(key string, _ bool) bool {
		if strings.HasPrefix(key, prefix) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		s.spotted.Delete(key)
	}
}

// ScanToken implements the "non-trap token's position changed" scheduling
// hook: check the moved token against every detection-enabled trap on its
// page.
func (s *Sensor) ScanToken(ctx context.Context, platform host.Platform, observerID, pageID string) {
	objs, err := platform.FindObjects(ctx, pageID, host.ObjectGraphic)
	if err != nil {
		return
	}
	for _, obj := range objs {
		if !hasDetection(obj) {
			continue
		}
		trapID := obj.ID()
		go s.singleCheckRecovered(ctx, platform, observerID, trapID, pageID)
	}
}

// ScanPage implements the door/legacy-door-path open-transition scheduling
// hook: the full cross product of non-trap tokens x detection-enabled
// traps on the page.
func (s *Sensor) ScanPage(ctx context.Context, platform host.Platform, pageID string) {
	objs, err := platform.FindObjects(ctx, pageID, host.ObjectGraphic)
	if err != nil {
		return
	}

	var observers, traps []host.Object
	for _, obj := range objs {
		if hasDetection(obj) {
			traps = append(traps, obj)
			continue
		}
		observers = append(observers, obj)
	}

	for _, observer := range observers {
		for _, trap := range traps {
			go s.singleCheckRecovered(ctx, platform, observer.ID(), trap.ID(), pageID)
		}
	}
}

func hasDetection(obj host.Object) bool {
	raw, _ := obj.Get("notes")
	notesStr, _ := raw.(string)
	cfg, isTrap, err := notes.Decode(obj.ID(), notesStr)
	return err == nil && isTrap && cfg.HasDetectionBlock
}

// singleCheckRecovered runs singleCheck in its own goroutine per §4.8's
// "fire-and-forget async with no ordering guarantee among pairs", and must
// never let one pair's panic take down another in-flight scan.
func (s *Sensor) singleCheckRecovered(ctx context.Context, platform host.Platform, observerID, trapID, pageID string) {
	defer func() { _ = recover() }()
	_ = s.singleCheck(ctx, platform, observerID, trapID, pageID)
}

// singleCheck runs the full §4.8 gate chain for one (observer, trap) pair.
func (s *Sensor) singleCheck(ctx context.Context, platform host.Platform, observerID, trapID, pageID string) error {
	trapObj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(trapID, "passive scan: resolve trap")
	}
	rawNotes, _ := trapObj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(trapID, notesStr)
	if err != nil || !isTrap || !cfg.HasDetectionBlock || !cfg.PassiveEnabled {
		return nil
	}

	observerObj, err := platform.GetObject(ctx, observerID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(observerID, "passive scan: resolve observer")
	}

	characterID := ""
	if v, ok := observerObj.Get("represents"); ok {
		characterID, _ = v.(string)
	}
	ledgerID := observerID
	if characterID != "" {
		ledgerID = characterID
	}
	key := spottedKey(trapID, ledgerID)
	if already, _ := s.spotted.Load(key); already {
		return nil
	}

	observerPoint := centerOf(observerObj)
	trapPoint := centerOf(trapObj)

	if s.LOS != nil {
		blocked, err := s.LOS.Blocked(ctx, pageID, observerPoint, trapPoint)
		if err == nil && blocked {
			return nil
		}
	}

	gridSize, _ := platform.GridSize(ctx, pageID)
	scale, _ := platform.Scale(ctx, pageID)
	distance := geometry.ToMapUnits(geometry.Distance(observerPoint, trapPoint), scale, gridSize)
	if cfg.PassiveMaxRange > 0 && distance > cfg.PassiveMaxRange {
		return nil
	}

	basePP, ok := s.resolvePassivePerception(ctx, platform, characterID, observerID, cfg)
	if !ok {
		return trapErrors.NewSheetLookupFailure(characterID, "no passive perception value resolved")
	}

	luckBonus := 0
	if cfg.EnableLuckRoll {
		luckBonus = rollDie(ctx, platform, cfg.LuckRollDie)
	}

	finalPP := basePP + luckBonus
	if finalPP < cfg.PassiveSpotDC {
		return nil
	}

	s.spotted.Store(key, true)
	cfg.Detected = true
	if err := trapObj.Set(ctx, "notes", notes.Encode(notesStr, cfg)); err != nil {
		return err
	}
	state := visual.Derive(cfg, s.toggles(), visual.OuterRadius(ctx, platform, trapObj))
	if err := visual.Apply(ctx, trapObj, state); err != nil {
		return err
	}

	s.notify(ctx, platform, characterID, observerID, cfg, nameOf(trapObj, trapID), basePP, luckBonus, distance)
	return nil
}

func (s *Sensor) resolvePassivePerception(ctx context.Context, platform host.Platform, characterID, observerID string, cfg domain.TrapConfig) (int, bool) {
	if characterID != "" {
		if v, ok := platform.GetSheetItem(ctx, characterID, "passive_wisdom"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
		if v, ok := platform.GetAttribute(ctx, characterID, "passive_wisdom"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	if cfg.PPTokenBarFallback != "" {
		if n, ok := platform.GetTokenBar(ctx, observerID, cfg.PPTokenBarFallback); ok {
			return n, true
		}
	}
	return 0, false
}

var dicePattern = regexp.MustCompile(`^(\d*)d(\d+)$`)

// rollDie parses an "NdM" die spec and rolls it via the host's own roller,
// so the luck roll in §4.8 is auditable the same way every other roll is.
func rollDie(ctx context.Context, platform host.Platform, spec string) int {
	m := dicePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(spec)))
	if m == nil {
		return 0
	}
	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil || sides <= 0 {
		return 0
	}
	total := 0
	for i := 0; i < count; i++ {
		total += platform.RandomInteger(ctx, sides)
	}
	return total
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

func render(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// notify renders and sends the player/GM notices of §4.8, applying the
// per-character debounce to the player side only.
func (s *Sensor) notify(ctx context.Context, platform host.Platform, characterID, observerID string, cfg domain.TrapConfig, trapName string, basePP, luckBonus int, distance float64) {
	vars := map[string]string{
		"charName":       s.characterName(ctx, platform, characterID, observerID),
		"trapName":       trapName,
		"charPP":         strconv.Itoa(basePP + luckBonus),
		"trapDC":         strconv.Itoa(cfg.PassiveSpotDC),
		"distanceToTrap": strconv.FormatFloat(distance, 'f', 1, 64),
		"luckBonus":      strconv.Itoa(luckBonus),
		"basePP":         strconv.Itoa(basePP),
	}

	if gmMessage := render(cfg.PassiveNoticeGM, vars); gmMessage != "" {
		_ = platform.Whisper(ctx, "gm", gmMessage)
	}

	playerMessage := render(cfg.PassiveNoticePlayer, vars)
	if playerMessage == "" {
		return
	}

	controllers, err := platform.ControllersOf(ctx, characterID)
	var nonGM []string
	for _, c := range controllers {
		if !platform.IsGM(ctx, c) {
			nonGM = append(nonGM, c)
		}
	}

	if err != nil || len(nonGM) == 0 {
		_ = platform.Whisper(ctx, "gm", fmt.Sprintf("no non-GM controller to notify for %s: %s", vars["charName"], playerMessage))
		return
	}

	if s.Embellisher != nil {
		if embellished, err := s.Embellisher.Embellish(ctx, playerMessage, s.Style); err == nil {
			playerMessage = embellished
		}
	}

	if s.debounced(characterID, playerMessage) {
		return
	}
	for _, controller := range nonGM {
		_ = platform.Whisper(ctx, controller, playerMessage)
	}
}

func (s *Sensor) characterName(ctx context.Context, platform host.Platform, characterID, observerID string) string {
	if characterID == "" {
		return observerID
	}
	if v, ok := platform.GetSheetItem(ctx, characterID, "character_name"); ok && v != "" {
		return v
	}
	return characterID
}

// debounced reports whether message is already in-window for characterID
// and, if not, records it.
func (s *Sensor) debounced(characterID, message string) bool {
	bucket, _ := s.debounce.LoadOrStore(characterID, &debounceBucket{})
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	window := s.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	now := time.Now()
	kept := bucket.entries[:0]
	suppressed := false
	for _, e := range bucket.entries {
		if now.Sub(e.at) > window {
			continue
		}
		kept = append(kept, e)
		if e.text == message {
			suppressed = true
		}
	}
	bucket.entries = kept
	if suppressed {
		return true
	}
	bucket.entries = append(bucket.entries, debounceEntry{text: message, at: now})
	return false
}

func centerOf(obj host.Object) geometry.Point {
	left, _ := obj.Get("left")
	top, _ := obj.Get("top")
	return geometry.Point{X: toFloat(left), Y: toFloat(top)}
}

func nameOf(obj host.Object, fallback string) string {
	if v, ok := obj.Get("name"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
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
