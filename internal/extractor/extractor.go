// Package extractor implements regex-driven variable extraction: a source
// expression resolved per event, one of three regex modes, and an ordered
// post-modifier pipeline. Regexes and modifiers are compiled and validated
// once at tree-compile time.
package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/WuerthPhoenix/tornado-match/internal/accessor"
	"github.com/WuerthPhoenix/tornado-match/internal/interpolate"
	"github.com/WuerthPhoenix/tornado-match/internal/ruleconf"
	"github.com/WuerthPhoenix/tornado-match/internal/value"
)

// ExtractionError is a local, per-rule failure: the regex did not match,
// the source had the wrong type, or a modifier rejected its input. The
// enclosing rule is reported PartiallyMatched with this error's message.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string { return e.Reason }

func extractErr(format string, args ...any) error {
	return &ExtractionError{Reason: fmt.Sprintf(format, args...)}
}

type mode int

const (
	modeIndex mode = iota
	modeNamed
	modeKey
)

// Compiled is an extractor ready for repeated evaluation.
type Compiled struct {
	from       *interpolate.Template
	mode       mode
	re         *regexp.Regexp
	groupIdx   *int
	allMatches bool
	mods       []modifier
}

// Compile validates an Extractor config and compiles its source template,
// regex, and modifier pipeline.
func Compile(cfg ruleconf.Extractor) (*Compiled, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("extractor: from is required")
	}
	from, err := interpolate.Parse(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("extractor: invalid from expression: %w", err)
	}

	c := &Compiled{from: from, allMatches: cfg.Regex.AllMatches}

	pattern := ""
	switch cfg.Regex.Type {
	case ruleconf.RegexTypeStd:
		c.mode = modeIndex
		pattern = cfg.Regex.Match
	case ruleconf.RegexTypeNamedGroups:
		c.mode = modeNamed
		pattern = cfg.Regex.NamedMatch
		if pattern == "" {
			pattern = cfg.Regex.Match
		}
	case ruleconf.RegexTypeKey:
		c.mode = modeKey
		pattern = cfg.Regex.SingleKeyMatch
		if pattern == "" {
			pattern = cfg.Regex.Match
		}
	case "":
		// Untyped configs are disambiguated by which pattern field is set.
		switch {
		case cfg.Regex.Match != "":
			c.mode = modeIndex
			pattern = cfg.Regex.Match
		case cfg.Regex.NamedMatch != "":
			c.mode = modeNamed
			pattern = cfg.Regex.NamedMatch
		case cfg.Regex.SingleKeyMatch != "":
			c.mode = modeKey
			pattern = cfg.Regex.SingleKeyMatch
		default:
			return nil, fmt.Errorf("extractor: regex pattern is required")
		}
	default:
		return nil, fmt.Errorf("extractor: unknown regex type %q", cfg.Regex.Type)
	}
	if pattern == "" {
		return nil, fmt.Errorf("extractor: regex pattern is required")
	}

	c.re, err = regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("extractor: invalid pattern %q: %v", pattern, err)
	}

	if c.mode == modeIndex && cfg.Regex.GroupMatchIdx != nil {
		idx := *cfg.Regex.GroupMatchIdx
		if idx < 0 || idx > c.re.NumSubexp() {
			return nil, fmt.Errorf("extractor: group_match_idx %d out of range for pattern %q", idx, pattern)
		}
		c.groupIdx = &idx
	}
	if c.mode == modeNamed {
		named := false
		for _, n := range c.re.SubexpNames()[1:] {
			if n != "" {
				named = true
				break
			}
		}
		if !named {
			return nil, fmt.Errorf("extractor: pattern %q has no named groups", pattern)
		}
	}

	for i, m := range cfg.ModifiersPost {
		mod, err := compileModifier(m)
		if err != nil {
			return nil, fmt.Errorf("extractor: modifiers_post[%d]: %w", i, err)
		}
		c.mods = append(c.mods, mod)
	}
	return c, nil
}

// Extract resolves the source, runs the regex, and applies the modifier
// pipeline, yielding the extracted Value or an ExtractionError.
func (c *Compiled) Extract(ev value.Event, scope *accessor.Scope) (value.Value, error) {
	src, err := interpolate.RenderValue(c.from, ev, scope)
	if err != nil {
		return value.Null, extractErr("cannot resolve source: %v", err)
	}

	var out value.Value
	switch c.mode {
	case modeKey:
		out, err = c.extractKey(src)
	default:
		s, ok := src.AsString()
		if !ok {
			return value.Null, extractErr("source is %s, expected string", src.Kind())
		}
		if c.mode == modeNamed {
			out, err = c.extractNamed(s)
		} else {
			out, err = c.extractIndex(s)
		}
	}
	if err != nil {
		return value.Null, err
	}

	for _, m := range c.mods {
		out, err = m.apply(out)
		if err != nil {
			return value.Null, err
		}
	}
	return out, nil
}

func (c *Compiled) extractIndex(s string) (value.Value, error) {
	if !c.allMatches {
		m := c.re.FindStringSubmatch(s)
		if m == nil {
			return value.Null, extractErr("regex %q did not match", c.re.String())
		}
		return c.indexMatchValue(m)
	}
	ms := c.re.FindAllStringSubmatch(s, -1)
	if ms == nil {
		return value.Null, extractErr("regex %q did not match", c.re.String())
	}
	items := make([]value.Value, 0, len(ms))
	for _, m := range ms {
		v, err := c.indexMatchValue(m)
		if err != nil {
			return value.Null, err
		}
		items = append(items, v)
	}
	return value.Array(items), nil
}

// indexMatchValue maps one submatch slice to a Value: the selected group
// when group_match_idx is set, otherwise the whole group array.
func (c *Compiled) indexMatchValue(m []string) (value.Value, error) {
	if c.groupIdx != nil {
		if *c.groupIdx >= len(m) {
			return value.Null, extractErr("group %d not captured", *c.groupIdx)
		}
		return value.String(m[*c.groupIdx]), nil
	}
	groups := make([]value.Value, len(m))
	for i, g := range m {
		groups[i] = value.String(g)
	}
	return value.Array(groups), nil
}

func (c *Compiled) extractNamed(s string) (value.Value, error) {
	names := c.re.SubexpNames()
	toObject := func(m []string) value.Value {
		obj := value.NewObject()
		for i, n := range names {
			if n != "" && i < len(m) {
				obj.Set(n, value.String(m[i]))
			}
		}
		return obj.Build()
	}
	if !c.allMatches {
		m := c.re.FindStringSubmatch(s)
		if m == nil {
			return value.Null, extractErr("regex %q did not match", c.re.String())
		}
		return toObject(m), nil
	}
	ms := c.re.FindAllStringSubmatch(s, -1)
	if ms == nil {
		return value.Null, extractErr("regex %q did not match", c.re.String())
	}
	items := make([]value.Value, 0, len(ms))
	for _, m := range ms {
		items = append(items, toObject(m))
	}
	return value.Array(items), nil
}

// extractKey matches the pattern against an Object's keys. Exactly one key
// must match; the extracted value is that key.
func (c *Compiled) extractKey(src value.Value) (value.Value, error) {
	keys, _, ok := src.AsObject()
	if !ok {
		return value.Null, extractErr("source is %s, expected object", src.Kind())
	}
	matched := ""
	count := 0
	for _, k := range keys {
		if c.re.MatchString(k) {
			matched = k
			count++
		}
	}
	switch count {
	case 0:
		return value.Null, extractErr("no key matches %q", c.re.String())
	case 1:
		return value.String(matched), nil
	default:
		return value.Null, extractErr("%d keys match %q, expected exactly one", count, c.re.String())
	}
}

type modifier interface {
	apply(v value.Value) (value.Value, error)
}

func compileModifier(cfg ruleconf.Modifier) (modifier, error) {
	switch strings.ToLower(cfg.Type) {
	case "lowercase":
		return modLowercase{}, nil
	case "trim":
		return modTrim{}, nil
	case "tonumber":
		return modToNumber{}, nil
	case "replaceall":
		if cfg.Find == "" {
			return nil, fmt.Errorf("ReplaceAll modifier requires find")
		}
		if !cfg.IsRegex {
			return modReplaceLiteral{find: cfg.Find, replace: cfg.Replace}, nil
		}
		re, err := regexp.Compile(cfg.Find)
		if err != nil {
			return nil, fmt.Errorf("ReplaceAll modifier: invalid pattern %q: %v", cfg.Find, err)
		}
		return modReplaceRegex{re: re, replace: cfg.Replace}, nil
	case "map":
		if len(cfg.Mapping) == 0 {
			return nil, fmt.Errorf("Map modifier requires a mapping")
		}
		m := make(map[string]string, len(cfg.Mapping))
		for k, v := range cfg.Mapping {
			m[k] = v
		}
		return modMap{mapping: m, defaultValue: cfg.DefaultValue}, nil
	default:
		return nil, fmt.Errorf("unknown modifier type %q", cfg.Type)
	}
}

func requireString(v value.Value, mod string) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", extractErr("%s modifier requires a string, got %s", mod, v.Kind())
	}
	return s, nil
}

type modLowercase struct{}

func (modLowercase) apply(v value.Value) (value.Value, error) {
	s, err := requireString(v, "Lowercase")
	if err != nil {
		return value.Null, err
	}
	return value.String(strings.ToLower(s)), nil
}

type modTrim struct{}

func (modTrim) apply(v value.Value) (value.Value, error) {
	s, err := requireString(v, "Trim")
	if err != nil {
		return value.Null, err
	}
	return value.String(strings.TrimSpace(s)), nil
}

type modToNumber struct{}

func (modToNumber) apply(v value.Value) (value.Value, error) {
	if _, ok := v.AsNumber(); ok {
		return v, nil
	}
	s, err := requireString(v, "ToNumber")
	if err != nil {
		return value.Null, err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return value.Null, extractErr("ToNumber modifier: %q is not a number", s)
	}
	return value.Number(n), nil
}

type modReplaceLiteral struct {
	find    string
	replace string
}

func (m modReplaceLiteral) apply(v value.Value) (value.Value, error) {
	s, err := requireString(v, "ReplaceAll")
	if err != nil {
		return value.Null, err
	}
	return value.String(strings.ReplaceAll(s, m.find, m.replace)), nil
}

type modReplaceRegex struct {
	re      *regexp.Regexp
	replace string
}

func (m modReplaceRegex) apply(v value.Value) (value.Value, error) {
	s, err := requireString(v, "ReplaceAll")
	if err != nil {
		return value.Null, err
	}
	// ReplaceAllString expands $1..$N and $name references natively.
	return value.String(m.re.ReplaceAllString(s, m.replace)), nil
}

type modMap struct {
	mapping      map[string]string
	defaultValue *string
}

func (m modMap) apply(v value.Value) (value.Value, error) {
	s, err := requireString(v, "Map")
	if err != nil {
		return value.Null, err
	}
	if mapped, ok := m.mapping[s]; ok {
		return value.String(mapped), nil
	}
	if m.defaultValue != nil {
		return value.String(*m.defaultValue), nil
	}
	return value.Null, extractErr("Map modifier: no mapping for %q and no default", s)
}
