package hostbridge

import (
	"context"
	"fmt"

	"github.com/oakhollow/trapengine/internal/domain/host"
)

// remoteObject is a snapshot of a host object's properties as of the last
// find_objects/get_object call. Set writes through to the host immediately
// rather than buffering, since the engine always re-reads notes before
// acting on a continuation (spec §5) and never assumes a cached Object
// stays fresh.
type remoteObject struct {
	id     string
	typ    host.ObjectType
	pageID string
	props  map[string]any
	bridge *Bridge
}

func (o *remoteObject) ID() string            { return o.id }
func (o *remoteObject) Type() host.ObjectType { return o.typ }
func (o *remoteObject) PageID() string        { return o.pageID }

func (o *remoteObject) Get(prop string) (any, bool) {
	v, ok := o.props[prop]
	return v, ok
}

func (o *remoteObject) Set(ctx context.Context, prop string, value any) error {
	err := o.bridge.Call(ctx, MethodSetProperty, setPropertyParams{
		ObjectID: o.id,
		Type:     string(o.typ),
		PageID:   o.pageID,
		Prop:     prop,
		Value:    value,
	}, nil)
	if err == nil {
		o.props[prop] = value
	}
	return err
}

func toObjects(b *Bridge, payloads []objectPayload) []host.Object {
	out := make([]host.Object, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, &remoteObject{
			id:     p.ID,
			typ:    host.ObjectType(p.Type),
			pageID: p.PageID,
			props:  p.Props,
			bridge: b,
		})
	}
	return out
}

func (b *Bridge) FindObjects(ctx context.Context, pageID string, objType host.ObjectType) ([]host.Object, error) {
	var result []objectPayload
	if err := b.Call(ctx, MethodFindObjects, findObjectsParams{PageID: pageID, Type: string(objType)}, &result); err != nil {
		return nil, err
	}
	return toObjects(b, result), nil
}

func (b *Bridge) GetObject(ctx context.Context, id string, objType host.ObjectType) (host.Object, error) {
	var result objectPayload
	if err := b.Call(ctx, MethodGetObject, getObjectParams{ID: id, Type: string(objType)}, &result); err != nil {
		return nil, err
	}
	return &remoteObject{id: result.ID, typ: host.ObjectType(result.Type), pageID: result.PageID, props: result.Props, bridge: b}, nil
}

func (b *Bridge) SendChat(ctx context.Context, from, message string) error {
	return b.Call(ctx, MethodSendChat, sendChatParams{From: from, Message: message}, nil)
}

func (b *Bridge) SendTemplate(ctx context.Context, from, templateName string, fields host.TemplateFields) error {
	return b.Call(ctx, MethodSendTemplate, sendTemplateParams{From: from, TemplateName: templateName, Fields: fields}, nil)
}

func (b *Bridge) SendCommand(ctx context.Context, command string) error {
	return b.Call(ctx, MethodSendCommand, sendCommandParams{Command: command}, nil)
}

func (b *Bridge) Whisper(ctx context.Context, to, message string) error {
	return b.Call(ctx, MethodWhisper, whisperParams{To: to, Message: message}, nil)
}

func (b *Bridge) GetAttribute(ctx context.Context, characterID, name string) (string, bool) {
	var result attributeResult
	if err := b.Call(ctx, MethodGetAttribute, attributeParams{CharacterID: characterID, Name: name}, &result); err != nil {
		return "", false
	}
	return result.Value, result.Found
}

func (b *Bridge) GetSheetItem(ctx context.Context, characterID, name string) (string, bool) {
	var result attributeResult
	if err := b.Call(ctx, MethodGetSheetItem, attributeParams{CharacterID: characterID, Name: name}, &result); err != nil {
		return "", false
	}
	return result.Value, result.Found
}

func (b *Bridge) GetTokenBar(ctx context.Context, tokenID, barID string) (int, bool) {
	var result tokenBarResult
	if err := b.Call(ctx, MethodGetTokenBar, tokenBarParams{TokenID: tokenID, BarID: barID}, &result); err != nil {
		return 0, false
	}
	return result.Value, result.Found
}

func (b *Bridge) RandomInteger(ctx context.Context, n int) int {
	var result randomIntegerResult
	if err := b.Call(ctx, MethodRandomInteger, randomIntegerParams{N: n}, &result); err != nil {
		return 0
	}
	return result.Value
}

func (b *Bridge) ControllersOf(ctx context.Context, characterID string) ([]string, error) {
	var result controllersOfResult
	if err := b.Call(ctx, MethodControllersOf, controllersOfParams{CharacterID: characterID}, &result); err != nil {
		return nil, err
	}
	return result.Controllers, nil
}

func (b *Bridge) IsGM(ctx context.Context, playerID string) bool {
	var result isGMResult
	if err := b.Call(ctx, MethodIsGM, isGMParams{PlayerID: playerID}, &result); err != nil {
		return false
	}
	return result.IsGM
}

func (b *Bridge) RunMacro(ctx context.Context, name string) (string, error) {
	var result runMacroResult
	if err := b.Call(ctx, MethodRunMacro, runMacroParams{Name: name}, &result); err != nil {
		return "", err
	}
	return result.Body, nil
}

func (b *Bridge) GridSize(ctx context.Context, pageID string) (float64, error) {
	var result floatResult
	if err := b.Call(ctx, MethodGridSize, pageParams{PageID: pageID}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (b *Bridge) Scale(ctx context.Context, pageID string) (float64, error) {
	var result floatResult
	if err := b.Call(ctx, MethodScale, pageParams{PageID: pageID}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (b *Bridge) AllPages(ctx context.Context) ([]string, error) {
	var result allPagesResult
	if err := b.Call(ctx, MethodAllPages, nil, &result); err != nil {
		return nil, err
	}
	return result.PageIDs, nil
}

// CommandAreaTrigger implements host.AreaTrigger by forwarding to the
// host's own area-trigger extension as a chat command, since no dedicated
// RPC method exists for it (spec §6 describes it as a collaborator the
// host process already has installed, not something this engine owns).
// host.AreaTrigger's signature carries no platform argument, so this
// resolves the live bridge from the Hub at call time rather than holding
// one fixed at construction.
type CommandAreaTrigger struct {
	Hub *Hub
}

func (c CommandAreaTrigger) ProcessTrigger(ctx context.Context, tag string, radiusFt float64, actionMacro string, isPerToken bool, x, y float64, pageID string) error {
	bridge, ok := c.Hub.Any()
	if !ok {
		return fmt.Errorf("no connected host bridge session")
	}
	return bridge.SendCommand(ctx, fmt.Sprintf("!processTrigger %s %g %s %t %g %g %s", tag, radiusFt, actionMacro, isPerToken, x, y, pageID))
}
