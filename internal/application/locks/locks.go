// Package locks implements C4: the registry of token->(trap, offset,
// flags) locks, immobility enforcement, and following a trap's own
// movement/rotation. Grounded on the teacher's JoinEvaluator
// (internal/application/executor/join.go): a mutex-guarded
// map[id]*record registry with typed accessor methods, reused here for a
// different kind of per-id state machine.
package locks

import (
	"context"
	"sync"

	"github.com/oakhollow/trapengine/internal/application/visual"
	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// Persister is the subset of the recovery store a Registry writes through
// on every mutation, so a restart doesn't lose track of a lock. Any of the
// storage package's Store implementations satisfy this without the
// package needing to import them.
type Persister interface {
	SaveLock(ctx context.Context, rec domain.LockRecord) error
	DeleteLock(ctx context.Context, tokenID string) error
}

// Registry is C4's in-process lock table. One Registry per running engine
// process; it is not safe to share across goroutines without the
// single-threaded-cooperative discipline described in spec §5 (every
// method here still takes its own mutex defensively, since the boot
// recovery scan in SPEC_FULL.md runs before the event loop starts). Store
// is optional recovery-cache persistence; a nil Store makes the registry
// pure in-memory state, fine for tests or a process that accepts losing
// lock state on restart.
type Registry struct {
	mu      sync.Mutex
	records map[string]*domain.LockRecord // tokenID -> record

	Store Persister

	// Toggles points at the owning Dispatcher's live global toggles, wired
	// by dispatcher.New so DepleteUse can re-derive visual state without
	// widening every call site's signature. Nil is safe: it behaves as the
	// zero-value toggles.
	Toggles *domain.GlobalToggles
}

func (r *Registry) toggles() domain.GlobalToggles {
	if r.Toggles == nil {
		return domain.GlobalToggles{}
	}
	return *r.Toggles
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*domain.LockRecord)}
}

func (r *Registry) persistSave(ctx context.Context, rec domain.LockRecord) {
	if r.Store != nil {
		_ = r.Store.SaveLock(ctx, rec)
	}
}

func (r *Registry) persistDelete(ctx context.Context, tokenID string) {
	if r.Store != nil {
		_ = r.Store.DeleteLock(ctx, tokenID)
	}
}

// Get returns the lock record for a token, if any.
func (r *Registry) Get(tokenID string) (domain.LockRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[tokenID]
	if !ok {
		return domain.LockRecord{}, false
	}
	return *rec, true
}

// Locked reports whether a token currently holds a lock.
func (r *Registry) Locked(tokenID string) bool {
	_, ok := r.Get(tokenID)
	return ok
}

// Acquire creates a lock record for tokenID against trapID, recording its
// offset in the trap's local (unrotated) frame, and writes the
// {!traplocked} marker to the token's notes so the lock survives a soft
// restart. Per §4.4's concurrency note, the caller is responsible for
// having already moved the token to snappedPoint *before* calling Acquire,
// so the next move event's revert is a no-op.
func (r *Registry) Acquire(ctx context.Context, platform host.Platform, tokenID string, trap domain.TrapConfig, trapID string, trapCenter geometry.Point, trapRotation float64, snappedPoint geometry.Point) error {
	offset := geometry.Rotate(snappedPoint.Sub(trapCenter), -trapRotation)

	rec := domain.LockRecord{
		TokenID:          tokenID,
		TrapID:           trapID,
		RelativeOffset:   offset,
		TrapDataSnapshot: trap,
	}
	r.mu.Lock()
	r.records[tokenID] = &rec
	r.mu.Unlock()
	r.persistSave(ctx, rec)

	tok, err := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(tokenID, "lock acquire")
	}
	rawNotes, _ := tok.Get("notes")
	notesStr, _ := rawNotes.(string)
	return tok.Set(ctx, "notes", notes.SetLockedMarker(notesStr, trapID))
}

// MarkTriggered sets the macroTriggered flag on a held lock (§3's "has been
// committed to consuming a use" bit).
func (r *Registry) MarkTriggered(ctx context.Context, tokenID string) {
	r.mu.Lock()
	rec, ok := r.records[tokenID]
	if ok {
		rec.MacroTriggered = true
	}
	var snapshot domain.LockRecord
	if ok {
		snapshot = *rec
	}
	r.mu.Unlock()
	if ok {
		r.persistSave(ctx, snapshot)
	}
}

// ReleaseOptions controls Release's use-depletion behavior.
type ReleaseOptions struct {
	// Commit, when true and the lock's macroTriggered flag is set,
	// decrements currentUses on the trap. A duplicate release (no record,
	// or record already released) is a no-op, making this idempotent
	// per §5's ordering guarantee (c).
	Commit bool
}

// Release removes tokenID's lock record, optionally depleting a use on the
// trap, clears the {!traplocked} marker, and reports whether a use was
// depleted (so the caller can re-derive visual state).
func (r *Registry) Release(ctx context.Context, platform host.Platform, tokenID string, opts ReleaseOptions) (depleted bool, err error) {
	r.mu.Lock()
	rec, ok := r.records[tokenID]
	if ok {
		delete(r.records, tokenID)
	}
	r.mu.Unlock()

	if !ok {
		return false, nil // duplicate release: no-op
	}
	r.persistDelete(ctx, tokenID)

	tok, gerr := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
	if gerr != nil {
		return false, trapErrors.NewHostObjectMissing(tokenID, "lock release")
	}
	rawNotes, _ := tok.Get("notes")
	notesStr, _ := rawNotes.(string)
	if err := tok.Set(ctx, "notes", notes.SetLockedMarker(notesStr, "")); err != nil {
		return false, err
	}

	if opts.Commit && rec.MacroTriggered {
		if err := r.DepleteUse(ctx, platform, rec.TrapID); err != nil {
			return false, err
		}
		depleted = true
	}
	return depleted, nil
}

// DepleteUse re-parses the trap's current notes, decrements currentUses by
// one (clamped at zero), re-persists them, and re-derives the trap's visual
// state so its bar/aura properties stay in sync with the new use count.
// Re-parsing on every call (rather than trusting an in-memory snapshot) is
// what makes release idempotent and safe against concurrent note edits
// between lock and release, per §5.
func (r *Registry) DepleteUse(ctx context.Context, platform host.Platform, trapID string) error {
	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(trapID, "deplete use")
	}
	rawNotes, _ := obj.Get("notes")
	notesStr, _ := rawNotes.(string)

	cfg, isTrap, err := notes.Decode(trapID, notesStr)
	if err != nil {
		return err
	}
	if !isTrap {
		return trapErrors.NewConfigParseError(trapID, "object is no longer a trap")
	}
	if cfg.CurrentUses > 0 {
		cfg.CurrentUses--
	}
	if err := obj.Set(ctx, "notes", notes.Encode(notesStr, cfg)); err != nil {
		return err
	}
	state := visual.Derive(cfg, r.toggles(), visual.OuterRadius(ctx, platform, obj))
	return visual.Apply(ctx, obj, state)
}

// ForceRelease releases a lock without any use depletion, used by
// `allowmovement`/`allowall`/`resetall`.
func (r *Registry) ForceRelease(ctx context.Context, platform host.Platform, tokenID string) error {
	_, err := r.Release(ctx, platform, tokenID, ReleaseOptions{Commit: false})
	return err
}

// LoadRecovered seeds the registry from a Store's recovery rows on process
// start, so a restart doesn't forget which tokens are mid-lock. Callers
// load recs from storage.Store.ListLocks before the event loop starts.
func (r *Registry) LoadRecovered(recs []domain.LockRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range recs {
		rec := recs[i]
		r.records[rec.TokenID] = &rec
	}
}

// AllTokenIDs returns every currently locked token id, used by
// `allowall`/`resetall` and the boot-recovery cross-check.
func (r *Registry) AllTokenIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids
}

// LockedToTrap returns every token id locked against trapID, used by Follow.
func (r *Registry) LockedToTrap(trapID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rec := range r.records {
		if rec.TrapID == trapID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Follow reprojects every token locked to trapID through the trap's new
// center/rotation (§4.4 "Follow"), reverting trapped tokens to their
// correct relative position after the trap itself moves, resizes, or
// rotates.
func (r *Registry) Follow(ctx context.Context, platform host.Platform, trapID string, newCenter geometry.Point, newRotation float64) error {
	for _, tokenID := range r.LockedToTrap(trapID) {
		r.mu.Lock()
		rec, ok := r.records[tokenID]
		r.mu.Unlock()
		if !ok {
			continue
		}
		newPos := geometry.Rotate(rec.RelativeOffset, newRotation).Add(newCenter)

		tok, err := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
		if err != nil {
			// §9: a failed lookup releases the stale lock silently.
			r.mu.Lock()
			delete(r.records, tokenID)
			r.mu.Unlock()
			continue
		}
		if err := tok.Set(ctx, "left", newPos.X); err != nil {
			return err
		}
		if err := tok.Set(ctx, "top", newPos.Y); err != nil {
			return err
		}
	}
	return nil
}

// Veto is the movement-veto of §4.4/§4.9: if tokenID is locked, revert its
// position back to the lock point and report true so the caller (C9) stops
// processing this event. Per §4.4's concurrency note, the trigger handler
// already moves the token to snappedPoint before Acquire runs, so the
// very next event's revert compares equal and is a no-op write.
func (r *Registry) Veto(ctx context.Context, platform host.Platform, tokenID string, trapCenter geometry.Point, trapRotation float64) (veto bool, err error) {
	rec, ok := r.Get(tokenID)
	if !ok {
		return false, nil
	}
	lockPoint := geometry.Rotate(rec.RelativeOffset, trapRotation).Add(trapCenter)

	tok, gerr := platform.GetObject(ctx, tokenID, host.ObjectGraphic)
	if gerr != nil {
		return true, trapErrors.NewHostObjectMissing(tokenID, "lock veto")
	}
	if err := tok.Set(ctx, "left", lockPoint.X); err != nil {
		return true, err
	}
	if err := tok.Set(ctx, "top", lockPoint.Y); err != nil {
		return true, err
	}
	return true, nil
}
