package hostbridge

import (
	"context"

	"github.com/oakhollow/trapengine/internal/application/dialogue"
	"github.com/oakhollow/trapengine/internal/application/dispatcher"
	"github.com/oakhollow/trapengine/internal/application/trigger"
	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/domain/notes"
)

// DispatcherRouter adapts a *dispatcher.Dispatcher to the EventRouter a
// Bridge expects, translating the bridge's wire payloads into the
// dispatcher's domain-shaped arguments (geometry.Point pairs, a resolved
// trigger.Options, a dialogue.RollResult). This is the one place that
// reads a page's grid size/scale and a token's immunity tag before
// handing a move off to C5, since the wire payload only carries raw
// coordinates.
//
// One simplification against spec §5: the "post-release free-move state"
// (Options.SafeMove) isn't separately timed here. allowmovement and
// allowall already release the lock immediately, so the common case
// (GM explicitly frees a token, then it moves) is covered without a
// grace-window timer; see DESIGN.md.
type DispatcherRouter struct {
	Dispatch *dispatcher.Dispatcher
}

var _ EventRouter = (*DispatcherRouter)(nil)

func (d *DispatcherRouter) RouteGraphicChange(ctx context.Context, platform host.Platform, p GraphicChangePayload) {
	change := dispatcher.GraphicChange{
		TokenID:          p.TokenID,
		PageID:           p.PageID,
		PrevPosition:     geometry.Point{X: p.PrevX, Y: p.PrevY},
		CurrPosition:     geometry.Point{X: p.CurrX, Y: p.CurrY},
		PositionChanged:  p.PositionChanged,
		RotationChanged:  p.RotationChanged,
		SizeChanged:      p.SizeChanged,
		NotesChanged:     p.NotesChanged,
		IgnoreTagToggled: p.IgnoreTagToggled,
		IgnoreTagNowOn:   p.IgnoreTagNowOn,
		TriggerOpts:      d.resolveOptions(ctx, platform, p),
	}
	_ = d.Dispatch.HandleGraphicChange(ctx, platform, change)
}

func (d *DispatcherRouter) resolveOptions(ctx context.Context, platform host.Platform, p GraphicChangePayload) trigger.Options {
	opts := trigger.Options{MoverWidth: p.MoverWidth, MoverHeight: p.MoverHeight}

	if gridSize, err := platform.GridSize(ctx, p.PageID); err == nil {
		opts.GridSize = gridSize
	}
	if scale, err := platform.Scale(ctx, p.PageID); err == nil {
		opts.Scale = scale
	}
	opts.MinMovementFraction = geometry.DefaultMinMovementFraction

	obj, err := platform.GetObject(ctx, p.TokenID, host.ObjectGraphic)
	if err != nil {
		opts.NonObjectLayer = true
		return opts
	}
	if layer, ok := obj.Get("layer"); ok {
		if s, ok := layer.(string); ok && s != "objects" {
			opts.NonObjectLayer = true
		}
	}
	if rawNotes, ok := obj.Get("notes"); ok {
		if s, ok := rawNotes.(string); ok {
			opts.Immune = notes.HasIgnoreTag(s)
		}
	}
	return opts
}

func (d *DispatcherRouter) RouteDoorChange(ctx context.Context, platform host.Platform, p DoorChangePayload) {
	d.Dispatch.HandleDoorChange(ctx, platform, p.PageID, p.ClosedToOpen)
}

func (d *DispatcherRouter) RoutePathChange(ctx context.Context, platform host.Platform, p PathChangePayload) {
	d.Dispatch.HandlePathChange(ctx, platform, p.PageID, p.ClosedToOpen)
}

func (d *DispatcherRouter) RouteChatCommand(ctx context.Context, platform host.Platform, p ChatCommandPayload) {
	_ = d.Dispatch.HandleChatCommand(ctx, platform, p.SpeakerID, p.Line)
}

func (d *DispatcherRouter) RouteRollResult(ctx context.Context, platform host.Platform, p RollResultPayload) {
	roll := dialogue.RollResult{
		RollerID:    p.RollerID,
		CharacterID: p.CharacterID,
		SkillName:   p.SkillName,
		Total:       p.Total,
		AdvMode:     domain.AdvantageMode(p.AdvMode),
	}
	_ = d.Dispatch.HandleRollResult(ctx, platform, roll)
}
