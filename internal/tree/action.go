package tree

import (
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/interpolate"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// Action is a compiled action template: every string in its payload has
// been scanned and its placeholders parsed into accessors.
type Action struct {
	ID      string
	payload *payloadNode
}

type payloadKind int

const (
	payloadLiteral payloadKind = iota
	payloadTemplate
	payloadArray
	payloadObject
)

// payloadNode mirrors the action payload Value tree with templated string
// leaves replaced by parsed templates.
type payloadNode struct {
	kind payloadKind
	lit  value.Value
	tmpl *interpolate.Template
	arr  []*payloadNode
	keys []string
	obj  map[string]*payloadNode
}

func compileAction(cfg ruleconf.ActionTemplate) (*Action, error) {
	if cfg.ID == "" {
		return nil, ruleconf.ErrRequired("", "action id")
	}
	p, err := compilePayload(cfg.Payload)
	if err != nil {
		return nil, err
	}
	return &Action{ID: cfg.ID, payload: p}, nil
}

func compilePayload(v value.Value) (*payloadNode, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		if !strings.Contains(s, "${") {
			return &payloadNode{kind: payloadLiteral, lit: v}, nil
		}
		t, err := interpolate.Parse(s)
		if err != nil {
			return nil, err
		}
		return &payloadNode{kind: payloadTemplate, tmpl: t}, nil
	case value.KindArray:
		items, _ := v.AsArray()
		arr := make([]*payloadNode, len(items))
		for i, item := range items {
			p, err := compilePayload(item)
			if err != nil {
				return nil, err
			}
			arr[i] = p
		}
		return &payloadNode{kind: payloadArray, arr: arr}, nil
	case value.KindObject:
		keys, fields, _ := v.AsObject()
		obj := make(map[string]*payloadNode, len(keys))
		ordered := make([]string, len(keys))
		copy(ordered, keys)
		for _, k := range keys {
			p, err := compilePayload(fields[k])
			if err != nil {
				return nil, err
			}
			obj[k] = p
		}
		return &payloadNode{kind: payloadObject, keys: ordered, obj: obj}, nil
	default:
		return &payloadNode{kind: payloadLiteral, lit: v}, nil
	}
}

// Materialize renders the action's payload against one event and variable
// scope. String leaves that are exactly one placeholder resolving to an
// Array or Object substitute the raw Value in place of the string; any
// interpolation failure aborts materialization for the enclosing rule.
func (a *Action) Materialize(ev value.Event, scope *accessor.Scope) (value.Value, error) {
	return a.payload.materialize(ev, scope)
}

func (p *payloadNode) materialize(ev value.Event, scope *accessor.Scope) (value.Value, error) {
	switch p.kind {
	case payloadLiteral:
		return p.lit, nil
	case payloadTemplate:
		res, err := interpolate.Render(p.tmpl, ev, scope)
		if err != nil {
			return value.Null, err
		}
		if res.PassThrough {
			return res.Value, nil
		}
		return value.String(res.Text), nil
	case payloadArray:
		items := make([]value.Value, len(p.arr))
		for i, child := range p.arr {
			v, err := child.materialize(ev, scope)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.Array(items), nil
	default:
		obj := value.NewObject()
		for _, k := range p.keys {
			v, err := p.obj[k].materialize(ev, scope)
			if err != nil {
				return value.Null, err
			}
			obj.Set(k, v)
		}
		return obj.Build(), nil
	}
}
