// Package testhost is an in-memory host.Platform used by the application
// package tests. It is not a production adapter; see
// internal/infrastructure/hostbridge for the real one.
package testhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/oakhollow/trapengine/internal/domain/host"
)

// Object is a fake host.Object backed by an in-memory property map.
type Object struct {
	id     string
	typ    host.ObjectType
	pageID string
	mu     sync.Mutex
	props  map[string]any
}

func (o *Object) ID() string            { return o.id }
func (o *Object) Type() host.ObjectType { return o.typ }
func (o *Object) PageID() string        { return o.pageID }

func (o *Object) Get(prop string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.props[prop]
	return v, ok
}

func (o *Object) Set(ctx context.Context, prop string, value any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props[prop] = value
	return nil
}

// Platform is an in-memory implementation of host.Platform for tests.
type Platform struct {
	mu          sync.Mutex
	objects     map[string]*Object
	Chats       []string
	Whispers    map[string][]string
	Commands    []string
	Templates   []string
	Attributes  map[string]map[string]string
	SheetItems  map[string]map[string]string
	TokenBars   map[string]map[string]int
	Controllers map[string][]string
	GMs         map[string]bool
	Macros      map[string]string
	NextRandom  int // deterministic dice for tests
	GridSizes   map[string]float64
	Scales      map[string]float64
}

// New creates an empty fake platform.
func New() *Platform {
	return &Platform{
		objects:     make(map[string]*Object),
		Whispers:    make(map[string][]string),
		Attributes:  make(map[string]map[string]string),
		SheetItems:  make(map[string]map[string]string),
		TokenBars:   make(map[string]map[string]int),
		Controllers: make(map[string][]string),
		GMs:         make(map[string]bool),
		Macros:      make(map[string]string),
		GridSizes:   make(map[string]float64),
		Scales:      make(map[string]float64),
	}
}

// AddObject registers a fake object with the given initial properties.
func (p *Platform) AddObject(id string, typ host.ObjectType, pageID string, props map[string]any) *Object {
	p.mu.Lock()
	defer p.mu.Unlock()
	if props == nil {
		props = map[string]any{}
	}
	obj := &Object{id: id, typ: typ, pageID: pageID, props: props}
	p.objects[id] = obj
	return obj
}

func (p *Platform) FindObjects(ctx context.Context, pageID string, objType host.ObjectType) ([]host.Object, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []host.Object
	for _, o := range p.objects {
		if o.pageID == pageID && o.typ == objType {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Platform) GetObject(ctx context.Context, id string, objType host.ObjectType) (host.Object, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	if !ok || o.typ != objType {
		return nil, fmt.Errorf("object %s not found", id)
	}
	return o, nil
}

func (p *Platform) SendChat(ctx context.Context, from, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Chats = append(p.Chats, from+": "+message)
	return nil
}

func (p *Platform) SendTemplate(ctx context.Context, from, templateName string, fields host.TemplateFields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Templates = append(p.Templates, templateName)
	return nil
}

func (p *Platform) SendCommand(ctx context.Context, command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Commands = append(p.Commands, command)
	return nil
}

func (p *Platform) Whisper(ctx context.Context, to, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Whispers[to] = append(p.Whispers[to], message)
	return nil
}

func (p *Platform) GetAttribute(ctx context.Context, characterID, name string) (string, bool) {
	v, ok := p.Attributes[characterID][name]
	return v, ok
}

func (p *Platform) GetSheetItem(ctx context.Context, characterID, name string) (string, bool) {
	v, ok := p.SheetItems[characterID][name]
	return v, ok
}

func (p *Platform) GetTokenBar(ctx context.Context, tokenID, barID string) (int, bool) {
	v, ok := p.TokenBars[tokenID][barID]
	return v, ok
}

func (p *Platform) RandomInteger(ctx context.Context, n int) int {
	if p.NextRandom > 0 {
		return p.NextRandom
	}
	return 1
}

func (p *Platform) ControllersOf(ctx context.Context, characterID string) ([]string, error) {
	return p.Controllers[characterID], nil
}

func (p *Platform) IsGM(ctx context.Context, playerID string) bool {
	return p.GMs[playerID]
}

func (p *Platform) RunMacro(ctx context.Context, name string) (string, error) {
	body, ok := p.Macros[name]
	if !ok {
		return "", fmt.Errorf("macro %s not found", name)
	}
	return body, nil
}

func (p *Platform) GridSize(ctx context.Context, pageID string) (float64, error) {
	if v, ok := p.GridSizes[pageID]; ok {
		return v, nil
	}
	return 70, nil
}

func (p *Platform) Scale(ctx context.Context, pageID string) (float64, error) {
	if v, ok := p.Scales[pageID]; ok {
		return v, nil
	}
	return 5, nil
}

func (p *Platform) AllPages(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, o := range p.objects {
		if o.pageID != "" && !seen[o.pageID] {
			seen[o.pageID] = true
			out = append(out, o.pageID)
		}
	}
	return out, nil
}

var _ host.Platform = (*Platform)(nil)
