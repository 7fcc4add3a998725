package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/events"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
)

// BunStore is the Postgres-backed Store: a recovery cache for lock
// records, pending checks and the spotted ledger, plus the append-only
// audit event log. The host object's notes blob stays the actual source
// of truth for trap state (spec §9); this store only needs to be correct
// enough that a process restart doesn't silently forget who's locked to
// what or what's mid-dialogue. Grounded on the teacher's BunStore: one
// bun.BaseModel per table, upsert-on-conflict saves, a tx-wrapped
// InitSchema that creates every table if missing.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*lockModel)(nil),
		(*pendingCheckModel)(nil),
		(*spottedModel)(nil),
		(*eventModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *BunStore) Close() error                   { return s.db.Close() }

// Locks

type lockModel struct {
	bun.BaseModel `bun:"table:locks,alias:l"`

	TokenID        string  `bun:"token_id,pk"`
	TrapID         string  `bun:"trap_id"`
	OffsetX        float64 `bun:"offset_x"`
	OffsetY        float64 `bun:"offset_y"`
	MacroTriggered bool    `bun:"macro_triggered"`
	TrapSnapshot   []byte  `bun:"trap_snapshot,type:jsonb"`
}

func newLockModel(rec domain.LockRecord) (*lockModel, error) {
	snap, err := json.Marshal(rec.TrapDataSnapshot)
	if err != nil {
		return nil, err
	}
	return &lockModel{
		TokenID:        rec.TokenID,
		TrapID:         rec.TrapID,
		OffsetX:        rec.RelativeOffset.X,
		OffsetY:        rec.RelativeOffset.Y,
		MacroTriggered: rec.MacroTriggered,
		TrapSnapshot:   snap,
	}, nil
}

func (m *lockModel) toDomain() (domain.LockRecord, error) {
	var cfg domain.TrapConfig
	if len(m.TrapSnapshot) > 0 {
		if err := json.Unmarshal(m.TrapSnapshot, &cfg); err != nil {
			return domain.LockRecord{}, err
		}
	}
	return domain.LockRecord{
		TokenID:          m.TokenID,
		TrapID:           m.TrapID,
		RelativeOffset:   geometry.Point{X: m.OffsetX, Y: m.OffsetY},
		MacroTriggered:   m.MacroTriggered,
		TrapDataSnapshot: cfg,
	}, nil
}

func (s *BunStore) SaveLock(ctx context.Context, rec domain.LockRecord) error {
	model, err := newLockModel(rec)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(model).On("CONFLICT (token_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetLock(ctx context.Context, tokenID string) (domain.LockRecord, bool, error) {
	model := new(lockModel)
	err := s.db.NewSelect().Model(model).Where("token_id = ?", tokenID).Scan(ctx)
	if err == sql.ErrNoRows {
		return domain.LockRecord{}, false, nil
	}
	if err != nil {
		return domain.LockRecord{}, false, err
	}
	rec, err := model.toDomain()
	return rec, err == nil, err
}

func (s *BunStore) DeleteLock(ctx context.Context, tokenID string) error {
	_, err := s.db.NewDelete().Model((*lockModel)(nil)).Where("token_id = ?", tokenID).Exec(ctx)
	return err
}

func (s *BunStore) ListLocks(ctx context.Context) ([]domain.LockRecord, error) {
	var models []lockModel
	if err := s.db.NewSelect().Model(&models).Order("token_id").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.LockRecord, 0, len(models))
	for _, m := range models {
		rec, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Pending checks

type pendingCheckModel struct {
	bun.BaseModel `bun:"table:pending_checks,alias:pc"`

	InitiatorID   string `bun:"initiator_id,pk"`
	TrapID        string `bun:"trap_id"`
	CheckIndex    int    `bun:"check_index"`
	Custom        bool   `bun:"custom"`
	SkillType     string `bun:"skill_type"`
	DC            int    `bun:"dc"`
	AdvantageMode string `bun:"advantage_mode"`
	FirstRoll     *int   `bun:"first_roll"`
	CharacterID   string `bun:"character_id"`
	CharacterName string `bun:"character_name"`
	LockedTokenID string `bun:"locked_token_id"`
}

func newPendingCheckModel(pc domain.PendingCheck) *pendingCheckModel {
	return &pendingCheckModel{
		InitiatorID:   pc.InitiatorID,
		TrapID:        pc.TrapID,
		CheckIndex:    pc.CheckIndex,
		Custom:        pc.Custom,
		SkillType:     pc.Config.SkillType,
		DC:            pc.Config.DC,
		AdvantageMode: string(pc.AdvantageMode),
		FirstRoll:     pc.FirstRoll,
		CharacterID:   pc.CharacterID,
		CharacterName: pc.CharacterName,
		LockedTokenID: pc.LockedTokenID,
	}
}

func (m *pendingCheckModel) toDomain() domain.PendingCheck {
	return domain.PendingCheck{
		TrapID:        m.TrapID,
		CheckIndex:    m.CheckIndex,
		Custom:        m.Custom,
		Config:        domain.SkillCheck{SkillType: m.SkillType, DC: m.DC},
		AdvantageMode: domain.AdvantageMode(m.AdvantageMode),
		FirstRoll:     m.FirstRoll,
		InitiatorID:   m.InitiatorID,
		CharacterID:   m.CharacterID,
		CharacterName: m.CharacterName,
		LockedTokenID: m.LockedTokenID,
	}
}

func (s *BunStore) SavePendingCheck(ctx context.Context, pc domain.PendingCheck) error {
	model := newPendingCheckModel(pc)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (initiator_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetPendingCheck(ctx context.Context, initiatorID string) (domain.PendingCheck, bool, error) {
	model := new(pendingCheckModel)
	err := s.db.NewSelect().Model(model).Where("initiator_id = ?", initiatorID).Scan(ctx)
	if err == sql.ErrNoRows {
		return domain.PendingCheck{}, false, nil
	}
	if err != nil {
		return domain.PendingCheck{}, false, err
	}
	return model.toDomain(), true, nil
}

func (s *BunStore) DeletePendingCheck(ctx context.Context, initiatorID string) error {
	_, err := s.db.NewDelete().Model((*pendingCheckModel)(nil)).Where("initiator_id = ?", initiatorID).Exec(ctx)
	return err
}

func (s *BunStore) ListPendingChecks(ctx context.Context) ([]domain.PendingCheck, error) {
	var models []pendingCheckModel
	if err := s.db.NewSelect().Model(&models).Order("initiator_id").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.PendingCheck, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// Spotted ledger

type spottedModel struct {
	bun.BaseModel `bun:"table:spotted_entries,alias:sp"`

	TrapID     string `bun:"trap_id,pk"`
	ObserverID string `bun:"observer_id,pk"`
}

func (s *BunStore) MarkSpotted(ctx context.Context, trapID, observerID string) error {
	model := &spottedModel{TrapID: trapID, ObserverID: observerID}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (trap_id, observer_id) DO NOTHING").Exec(ctx)
	return err
}

func (s *BunStore) IsSpotted(ctx context.Context, trapID, observerID string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*spottedModel)(nil)).
		Where("trap_id = ? AND observer_id = ?", trapID, observerID).Exists(ctx)
	return exists, err
}

func (s *BunStore) ClearSpotted(ctx context.Context, trapID string) error {
	_, err := s.db.NewDelete().Model((*spottedModel)(nil)).Where("trap_id = ?", trapID).Exec(ctx)
	return err
}

// Audit events

type eventModel struct {
	bun.BaseModel `bun:"table:trap_events,alias:ev"`

	EventID   uuid.UUID         `bun:"event_id,pk"`
	Type      string            `bun:"event_type"`
	Sequence  int64             `bun:"sequence"`
	TrapID    string            `bun:"trap_id"`
	TokenID   string            `bun:"token_id"`
	PageID    string            `bun:"page_id"`
	Timestamp time.Time         `bun:"timestamp"`
	Data      map[string]any    `bun:"data,type:jsonb"`
	Metadata  map[string]string `bun:"metadata,type:jsonb"`
}

func newEventModel(ev events.Event) *eventModel {
	return &eventModel{
		EventID:   ev.EventID,
		Type:      string(ev.Type),
		Sequence:  ev.Sequence,
		TrapID:    ev.TrapID,
		TokenID:   ev.TokenID,
		PageID:    ev.PageID,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
		Metadata:  ev.Metadata,
	}
}

func (m *eventModel) toDomain() events.Event {
	return events.Event{
		EventID:   m.EventID,
		Type:      events.Type(m.Type),
		Sequence:  m.Sequence,
		TrapID:    m.TrapID,
		TokenID:   m.TokenID,
		PageID:    m.PageID,
		Timestamp: m.Timestamp,
		Data:      m.Data,
		Metadata:  m.Metadata,
	}
}

func (s *BunStore) AppendEvent(ctx context.Context, ev events.Event) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var seq int64
		err := tx.NewSelect().Model((*eventModel)(nil)).
			ColumnExpr("COALESCE(MAX(sequence), 0) + 1").
			Where("trap_id = ?", ev.TrapID).Scan(ctx, &seq)
		if err != nil {
			return err
		}
		ev.Sequence = seq
		_, err = tx.NewInsert().Model(newEventModel(ev)).Exec(ctx)
		return err
	})
}

func (s *BunStore) ListEventsByTrap(ctx context.Context, trapID string) ([]events.Event, error) {
	var models []eventModel
	if err := s.db.NewSelect().Model(&models).Where("trap_id = ?", trapID).Order("sequence").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}
