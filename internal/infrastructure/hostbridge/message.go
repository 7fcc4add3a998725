// Package hostbridge is the websocket transport between this process and
// the external VTT host (spec §6): the host pushes graphic/door/path/chat/
// roll events over one long-lived socket, and this process answers back
// over the same socket with whisper/chat/command calls and synchronous
// object-graph reads. Grounded on the teacher's
// internal/infrastructure/websocket package (client read/write pumps, a
// Hub registry, JWT auth), generalized from a fan-out event broadcaster
// (many dashboard clients subscribed to one execution) to a request/
// response RPC transport (one host connection per campaign, answering
// Platform reads synchronously) since that's the shape spec §6 needs: the
// engine doesn't just listen, it calls back into the host's object graph.
package hostbridge

import "encoding/json"

// Frame is the one wire envelope every message on the socket uses,
// discriminated by Kind. "event" frames flow host -> engine and are
// fire-and-forget; "call" frames flow engine -> host and expect a
// matching "result" frame carrying the same ID.
type Frame struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	KindEvent  = "event"
	KindCall   = "call"
	KindResult = "result"
)

// Event names, the host-side half of spec §6's event families.
const (
	EventGraphicChange = "graphic_change"
	EventDoorChange    = "door_change"
	EventPathChange    = "path_change"
	EventChatCommand   = "chat_command"
	EventRollResult    = "roll_result"
)

// RPC method names, one per host.Platform method this bridge answers.
const (
	MethodFindObjects    = "find_objects"
	MethodGetObject      = "get_object"
	MethodSetProperty    = "set_property"
	MethodSendChat       = "send_chat"
	MethodSendTemplate   = "send_template"
	MethodSendCommand    = "send_command"
	MethodWhisper        = "whisper"
	MethodGetAttribute   = "get_attribute"
	MethodGetSheetItem   = "get_sheet_item"
	MethodGetTokenBar    = "get_token_bar"
	MethodRandomInteger  = "random_integer"
	MethodControllersOf  = "controllers_of"
	MethodIsGM           = "is_gm"
	MethodRunMacro       = "run_macro"
	MethodGridSize       = "grid_size"
	MethodScale          = "scale"
	MethodAllPages       = "all_pages"
)

// GraphicChangePayload mirrors dispatcher.GraphicChange, minus the
// TriggerOpts fields the bridge derives itself from the page (grid size,
// scale, immunity tag, safe-move state) before calling the dispatcher.
type GraphicChangePayload struct {
	TokenID          string  `json:"token_id"`
	PageID           string  `json:"page_id"`
	PrevX            float64 `json:"prev_x"`
	PrevY            float64 `json:"prev_y"`
	CurrX            float64 `json:"curr_x"`
	CurrY            float64 `json:"curr_y"`
	PositionChanged  bool    `json:"position_changed"`
	RotationChanged  bool    `json:"rotation_changed"`
	SizeChanged      bool    `json:"size_changed"`
	NotesChanged     bool    `json:"notes_changed"`
	IgnoreTagToggled bool    `json:"ignore_tag_toggled"`
	IgnoreTagNowOn   bool    `json:"ignore_tag_now_on"`
	MoverWidth       float64 `json:"mover_width"`
	MoverHeight      float64 `json:"mover_height"`
}

type DoorChangePayload struct {
	PageID       string `json:"page_id"`
	ClosedToOpen bool   `json:"closed_to_open"`
}

type PathChangePayload struct {
	PageID       string `json:"page_id"`
	ClosedToOpen bool   `json:"closed_to_open"`
}

type ChatCommandPayload struct {
	SpeakerID string `json:"speaker_id"`
	Line      string `json:"line"`
}

type RollResultPayload struct {
	RollerID    string `json:"roller_id"`
	CharacterID string `json:"character_id"`
	SkillName   string `json:"skill_name"`
	Total       int    `json:"total"`
	AdvMode     string `json:"adv_mode"`
}

// RPC call/result payload shapes, one pair per host.Platform method.

type findObjectsParams struct {
	PageID string `json:"page_id"`
	Type   string `json:"type"`
}

type objectPayload struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	PageID string         `json:"page_id"`
	Props  map[string]any `json:"props"`
}

type getObjectParams struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type setPropertyParams struct {
	ObjectID string `json:"object_id"`
	Type     string `json:"type"`
	PageID   string `json:"page_id"`
	Prop     string `json:"prop"`
	Value    any    `json:"value"`
}

type sendChatParams struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type sendTemplateParams struct {
	From         string            `json:"from"`
	TemplateName string            `json:"template_name"`
	Fields       map[string]string `json:"fields"`
}

type sendCommandParams struct {
	Command string `json:"command"`
}

type whisperParams struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type attributeParams struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name"`
}

type attributeResult struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type tokenBarParams struct {
	TokenID string `json:"token_id"`
	BarID   string `json:"bar_id"`
}

type tokenBarResult struct {
	Value int  `json:"value"`
	Found bool `json:"found"`
}

type randomIntegerParams struct {
	N int `json:"n"`
}

type randomIntegerResult struct {
	Value int `json:"value"`
}

type controllersOfParams struct {
	CharacterID string `json:"character_id"`
}

type controllersOfResult struct {
	Controllers []string `json:"controllers"`
}

type isGMParams struct {
	PlayerID string `json:"player_id"`
}

type isGMResult struct {
	IsGM bool `json:"is_gm"`
}

type runMacroParams struct {
	Name string `json:"name"`
}

type runMacroResult struct {
	Body string `json:"body"`
}

type pageParams struct {
	PageID string `json:"page_id"`
}

type floatResult struct {
	Value float64 `json:"value"`
}

type allPagesResult struct {
	PageIDs []string `json:"page_ids"`
}
