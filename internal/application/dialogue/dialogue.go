// Package dialogue implements C6: pending skill-check records indexed by
// both initiator and character, the three-stage roll resolver, the
// advantage/disadvantage two-roll combine, and resolving back into a use
// depletion or lock release (spec §4.6). Grounded on the teacher's
// JoinEvaluator (internal/application/executor/join.go) for the two-key
// lookup/completion shape and circuit_breaker.go for the tiny
// closed->half-open->resolved state machine the two-step roll forms.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oakhollow/trapengine/internal/application/locks"
	"github.com/oakhollow/trapengine/internal/application/trigger"
	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// ActionRunner executes a resolved check's success/failure macro. Separate
// from trigger.ActionRunner because a dialogue only knows a trap by id, not
// as a freshly-scanned TrapInstance.
type ActionRunner interface {
	RunByID(ctx context.Context, platform host.Platform, trapID, trappedTokenID, action string) error
}

// RollResult is the roll information C9 extracts from a chat message
// before handing it to Resolve.
type RollResult struct {
	RollerID    string // the player/user id who posted the roll
	CharacterID string // character id carried on the roll, if any
	SkillName   string // rolled skill/save label, "" for a flat/ability roll
	Total       int
	AdvMode     domain.AdvantageMode // adv/dis/normal tag on this specific roll, if the roll carries one
}

// Outcome reports what Resolve did.
type Outcome struct {
	Matched         bool
	NeedsArbitration bool
	AwaitingSecond  bool
	Success         bool
	Resolved        bool
}

// Persister is the subset of the recovery store a dialogue Store writes
// through on every create/resolve, mirroring locks.Persister. A nil Store
// field makes the dialogue table pure in-memory.
type Persister interface {
	SavePendingCheck(ctx context.Context, pc domain.PendingCheck) error
	DeletePendingCheck(ctx context.Context, initiatorID string) error
}

// Store is C6's pending-check table.
type Store struct {
	mu          sync.Mutex
	byInitiator map[string]*domain.PendingCheck
	byCharacter map[string]*domain.PendingCheck

	gates   *gateEvaluator
	Locks   *locks.Registry
	Actions ActionRunner
	Store   Persister
}

// NewStore creates an empty dialogue store bound to the shared lock
// registry and an action runner for success/failure macros.
func NewStore(reg *locks.Registry, actions ActionRunner) *Store {
	return &Store{
		byInitiator: make(map[string]*domain.PendingCheck),
		byCharacter: make(map[string]*domain.PendingCheck),
		gates:       newGateEvaluator(),
		Locks:       reg,
		Actions:     actions,
	}
}

// LoadRecovered seeds the table from a Store's recovery rows on process
// start, mirroring locks.Registry.LoadRecovered.
func (s *Store) LoadRecovered(checks []domain.PendingCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range checks {
		rec := checks[i]
		if rec.InitiatorID != "" {
			s.byInitiator[rec.InitiatorID] = &rec
		}
		if rec.CharacterID != "" {
			s.byCharacter[rec.CharacterID] = &rec
		}
	}
}

// Open implements trigger.Dialogue: it anchors a pending-check dossier to
// the locked token's character for an auto-triggered interaction trap
// (§4.5 step 6). When the trap configures no checks, a custom zero-DC
// check is opened instead, matching §4.6's "custom checks" allowance.
func (s *Store) Open(ctx context.Context, platform host.Platform, trap trigger.TrapInstance, lockedTokenID string) error {
	characterID := ""
	if tok, err := platform.GetObject(ctx, lockedTokenID, host.ObjectGraphic); err == nil {
		if v, ok := tok.Get("represents"); ok {
			characterID, _ = v.(string)
		}
	}

	check := domain.PendingCheck{
		TrapID:        trap.ID,
		CheckIndex:    -1,
		Custom:        true,
		CharacterID:   characterID,
		LockedTokenID: lockedTokenID,
		AdvantageMode: domain.AdvantageNormal,
	}
	if len(trap.Config.Checks) > 0 {
		check.CheckIndex = 0
		check.Custom = false
		check.Config = trap.Config.Checks[0]
	}
	return s.Create(ctx, check)
}

// Create inserts a new pending check, indexed by initiator and (if set) by
// character. §8's invariant — at most one active record per character — is
// enforced by simply overwriting any prior record for that character,
// since a fresh trigger event supersedes a stale one.
func (s *Store) Create(ctx context.Context, check domain.PendingCheck) error {
	s.mu.Lock()
	rec := check
	if rec.InitiatorID != "" {
		s.byInitiator[rec.InitiatorID] = &rec
	}
	if rec.CharacterID != "" {
		s.byCharacter[rec.CharacterID] = &rec
	}
	s.mu.Unlock()
	if s.Store != nil {
		_ = s.Store.SavePendingCheck(ctx, rec)
	}
	return nil
}

// CreateCustom opens an arbitrary {skillType, dc} check unrelated to any
// trap's configured checks (§4.6's "custom checks").
func (s *Store) CreateCustom(ctx context.Context, trapID, initiatorID, characterID, characterName, lockedTokenID string, skillCheck domain.SkillCheck, advantage domain.AdvantageMode) error {
	return s.Create(ctx, domain.PendingCheck{
		TrapID: trapID, CheckIndex: -1, Custom: true, Config: skillCheck,
		AdvantageMode: advantage, InitiatorID: initiatorID, CharacterID: characterID,
		CharacterName: characterName, LockedTokenID: lockedTokenID,
	})
}

// removeLocked drops check from both indexes; caller must hold s.mu.
func (s *Store) removeLocked(check *domain.PendingCheck) {
	if check.InitiatorID != "" {
		delete(s.byInitiator, check.InitiatorID)
	}
	if check.CharacterID != "" {
		delete(s.byCharacter, check.CharacterID)
	}
}

// Reject handles the GM's "Reject (prompt re-roll)" arbitration button. It
// leaves characterID's pending check in place, unresolved, so the player
// can roll again against the same record; it only reports whether such a
// record exists.
func (s *Store) Reject(characterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byCharacter[characterID]
	return ok
}

// normalizeSkillName strips a trailing " check" or " save" and lowercases,
// per §4.6's compatibility rule.
func normalizeSkillName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, " check")
	n = strings.TrimSuffix(n, " save")
	return n
}

// skillsCompatible implements §4.6: accept flat<->flat (both empty after
// normalization) and exact named matches; reject everything else.
func (s *Store) skillsCompatible(a, b string) bool {
	ok, err := s.gates.eval("a == b", map[string]any{
		"a": normalizeSkillName(a),
		"b": normalizeSkillName(b),
	})
	return err == nil && ok
}

// findControlledCharacter returns the single pending-check character, if
// any, controlled by playerID — used by the resolver's second stage.
func (s *Store) findControlledCharacter(ctx context.Context, platform host.Platform, playerID string) (*domain.PendingCheck, bool) {
	var match *domain.PendingCheck
	count := 0
	for charID, check := range s.byCharacter {
		controllers, err := platform.ControllersOf(ctx, charID)
		if err != nil {
			continue
		}
		for _, c := range controllers {
			if c == playerID {
				match = check
				count++
				break
			}
		}
	}
	if count == 1 {
		return match, true
	}
	return nil, false
}

// Resolve runs the three-stage lookup of §4.6, the skill-compatibility
// gate, the advantage combine, and (on a final total) the
// success/failure macro dispatch and trap resolution.
func (s *Store) Resolve(ctx context.Context, platform host.Platform, roll RollResult) (Outcome, error) {
	s.mu.Lock()
	check, matched := s.lookup(ctx, platform, roll)
	if !matched {
		s.mu.Unlock()
		return Outcome{}, nil
	}

	if err := s.authorize(ctx, platform, check, roll.RollerID); err != nil {
		s.mu.Unlock()
		return Outcome{Matched: true}, err
	}

	if !s.skillsCompatible(roll.SkillName, check.Config.SkillType) {
		s.mu.Unlock()
		return Outcome{Matched: true, NeedsArbitration: true}, nil
	}

	final, await := combineAdvantage(check, roll)
	if await {
		s.mu.Unlock()
		return Outcome{Matched: true, AwaitingSecond: true}, nil
	}

	s.removeLocked(check)
	s.mu.Unlock()
	if s.Store != nil && check.InitiatorID != "" {
		_ = s.Store.DeletePendingCheck(ctx, check.InitiatorID)
	}

	success := final >= check.Config.DC
	return s.finish(ctx, platform, *check, success)
}

// lookup must be called with s.mu held; it implements the three-stage
// resolver of §4.6.
func (s *Store) lookup(ctx context.Context, platform host.Platform, roll RollResult) (*domain.PendingCheck, bool) {
	if roll.CharacterID != "" {
		if check, ok := s.byCharacter[roll.CharacterID]; ok {
			return check, true
		}
	}
	if check, ok := s.findControlledCharacter(ctx, platform, roll.RollerID); ok {
		return check, true
	}
	if check, ok := s.byInitiator[roll.RollerID]; ok {
		return check, true
	}
	return nil, false
}

// authorize implements the AuthorizationDenied gate: the roller must be
// the GM, control the character, or be the original initiator.
func (s *Store) authorize(ctx context.Context, platform host.Platform, check *domain.PendingCheck, rollerID string) error {
	if platform.IsGM(ctx, rollerID) {
		return nil
	}
	if rollerID == check.InitiatorID {
		return nil
	}
	if check.CharacterID != "" {
		controllers, err := platform.ControllersOf(ctx, check.CharacterID)
		if err == nil {
			for _, c := range controllers {
				if c == rollerID {
					return nil
				}
			}
		}
	}
	return trapErrors.NewAuthorizationDenied(rollerID, "resolve pending check")
}

// combineAdvantage implements §4.6's advantage semantics. The roll is
// assumed pre-combined into roll.Total by the chat surface when it carries
// two dice; this function only handles the "first of two manual rolls"
// waiting state.
func combineAdvantage(check *domain.PendingCheck, roll RollResult) (final int, awaitingSecond bool) {
	mode := check.AdvantageMode
	if roll.AdvMode != "" {
		mode = roll.AdvMode
	}
	if mode == domain.AdvantageNormal {
		return roll.Total, false
	}
	if check.FirstRoll == nil {
		first := roll.Total
		check.FirstRoll = &first
		return 0, true
	}
	first := *check.FirstRoll
	second := roll.Total
	check.FirstRoll = nil
	if mode == domain.AdvantageAdvantage {
		if first > second {
			return first, false
		}
		return second, false
	}
	if first < second {
		return first, false
	}
	return second, false
}

// finish runs the success/failure macro and resolves the trap the same
// way as §4.5's primary-only edge case: release-with-commit if locked,
// else decrement the use directly.
func (s *Store) finish(ctx context.Context, platform host.Platform, check domain.PendingCheck, success bool) (Outcome, error) {
	var macro string
	cfg, err := s.reloadTrapConfig(ctx, platform, check.TrapID)
	if err != nil {
		return Outcome{Matched: true}, err
	}
	if success {
		macro = cfg.SuccessMacro
	} else {
		macro = cfg.FailureMacro
	}

	if macro != "" && s.Actions != nil {
		if err := s.Actions.RunByID(ctx, platform, check.TrapID, check.LockedTokenID, macro); err != nil {
			return Outcome{Matched: true, Success: success}, err
		}
	}

	if check.LockedTokenID != "" {
		s.Locks.MarkTriggered(ctx, check.LockedTokenID)
		if _, err := s.Locks.Release(ctx, platform, check.LockedTokenID, locks.ReleaseOptions{Commit: true}); err != nil {
			return Outcome{Matched: true, Success: success}, err
		}
	} else if err := s.Locks.DepleteUse(ctx, platform, check.TrapID); err != nil {
		return Outcome{Matched: true, Success: success}, err
	}

	return Outcome{Matched: true, Success: success, Resolved: true}, nil
}

func (s *Store) reloadTrapConfig(ctx context.Context, platform host.Platform, trapID string) (domain.TrapConfig, error) {
	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return domain.TrapConfig{}, trapErrors.NewHostObjectMissing(trapID, "dialogue resolve")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)
	cfg, isTrap, err := notes.Decode(trapID, notesStr)
	if err != nil {
		return domain.TrapConfig{}, err
	}
	if !isTrap {
		return domain.TrapConfig{}, fmt.Errorf("object %s is no longer a trap", trapID)
	}
	return cfg, nil
}
