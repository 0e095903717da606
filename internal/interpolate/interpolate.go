// Package interpolate implements the string template language used in
// operator operands and action payloads: literal text interleaved with
// `${...}` accessor placeholders.
package interpolate

import (
	"fmt"
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenPlaceholder
)

type token struct {
	kind    tokenKind
	literal string
	acc     *accessor.Accessor
}

// Template is a parsed string template, ready for repeated rendering.
type Template struct {
	raw    string
	tokens []token
}

// Raw returns the original template string.
func (t *Template) Raw() string { return t.raw }

// NonScalarError reports that a placeholder resolved to an Array or
// Object while embedded in a template with other literal text or
// placeholders; a non-scalar can only stand alone.
type NonScalarError struct {
	Template string
	Path     string
}

func (e *NonScalarError) Error() string {
	return fmt.Sprintf("interpolate: %q: placeholder %q resolved to a non-scalar value inside a larger template", e.Template, e.Path)
}

// TemplateError wraps any failure (accessor failure or non-scalar
// embedding) encountered while rendering a Template.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("interpolate: %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Result is the outcome of rendering a Template: either a String or a
// PassThrough of a non-scalar Value (see Parse/Render for when each
// applies).
type Result struct {
	PassThrough bool
	Value       value.Value // valid when PassThrough
	Text        string      // valid when !PassThrough
}

// Parse compiles a template string into a Template, pre-parsing every
// `${...}` placeholder's accessor.
func Parse(tmpl string) (*Template, error) {
	toks, err := tokenize(tmpl)
	if err != nil {
		return nil, err
	}
	return &Template{raw: tmpl, tokens: toks}, nil
}

func tokenize(tmpl string) ([]token, error) {
	var toks []token
	var lit strings.Builder

	flushLiteral := func() {
		if lit.Len() > 0 {
			toks = append(toks, token{kind: tokenLiteral, literal: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	n := len(tmpl)
	for i < n {
		if tmpl[i] == '$' && i+1 < n && tmpl[i+1] == '{' {
			j := i + 2
			inQuote := false
			for j < n && (tmpl[j] != '}' || inQuote) {
				if tmpl[j] == '"' {
					inQuote = !inQuote
				}
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("interpolate: %q: unterminated placeholder", tmpl)
			}
			path := tmpl[i+2 : j]
			acc, err := accessor.Parse(path)
			if err != nil {
				return nil, fmt.Errorf("interpolate: %q: %w", tmpl, err)
			}
			flushLiteral()
			toks = append(toks, token{kind: tokenPlaceholder, acc: acc})
			i = j + 1
			continue
		}
		lit.WriteByte(tmpl[i])
		i++
	}
	flushLiteral()
	return toks, nil
}

// RenderValue resolves a template to a Value. A template that is exactly
// one placeholder yields the resolved Value unchanged, preserving its
// type; any other template renders to a String. Operator operands and
// extractor sources resolve through this so that `${event.created_ms}`
// stays a number instead of decaying to its decimal rendering.
func RenderValue(t *Template, ev value.Event, scope *accessor.Scope) (value.Value, error) {
	if len(t.tokens) == 1 && t.tokens[0].kind == tokenPlaceholder {
		v, err := accessor.Eval(t.tokens[0].acc, ev, scope)
		if err != nil {
			return value.Null, &TemplateError{Template: t.raw, Err: err}
		}
		return v, nil
	}
	res, err := Render(t, ev, scope)
	if err != nil {
		return value.Null, err
	}
	return value.String(res.Text), nil
}

// Render evaluates the template's placeholders against ev/scope and
// produces a Result: a rendered String, or a PassThrough of the raw
// Value when the template is exactly one placeholder resolving to an
// Array or Object.
func Render(t *Template, ev value.Event, scope *accessor.Scope) (Result, error) {
	if len(t.tokens) == 1 && t.tokens[0].kind == tokenPlaceholder {
		v, err := accessor.Eval(t.tokens[0].acc, ev, scope)
		if err != nil {
			return Result{}, &TemplateError{Template: t.raw, Err: err}
		}
		if v.IsScalar() {
			return Result{Text: value.Render(v)}, nil
		}
		return Result{PassThrough: true, Value: v}, nil
	}

	var sb strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokenLiteral:
			sb.WriteString(tok.literal)
		case tokenPlaceholder:
			v, err := accessor.Eval(tok.acc, ev, scope)
			if err != nil {
				return Result{}, &TemplateError{Template: t.raw, Err: err}
			}
			if !v.IsScalar() {
				return Result{}, &TemplateError{
					Template: t.raw,
					Err:      &NonScalarError{Template: t.raw, Path: tok.acc.String()},
				}
			}
			sb.WriteString(value.Render(v))
		}
	}
	return Result{Text: sb.String()}, nil
}
