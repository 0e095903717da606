// Package accessor parses and evaluates the `${...}` path expression
// grammar: event/metadata/payload fields, extracted variables, array
// indices, and the bare "entire current value" path.
package accessor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// segKind tags a parsed path segment.
type segKind int

const (
	segField segKind = iota
	segIndex
)

type segment struct {
	kind  segKind
	field string
	index int
}

// Accessor is a compiled path expression, ready for repeated evaluation.
type Accessor struct {
	raw      string
	segments []segment
}

// String returns the original, unparsed path (without the ${ } wrapper).
func (a *Accessor) String() string { return a.raw }

// AccessFailure reports that a path could not be resolved: a missing key,
// a wrong container type, or an out-of-range index. It is distinct from
// an explicit null: absence and null are different observations.
type AccessFailure struct {
	Path   string
	Reason string
}

func (e *AccessFailure) Error() string {
	return fmt.Sprintf("accessor: cannot resolve %q: %s", e.Path, e.Reason)
}

func fail(path, reason string) error {
	return &AccessFailure{Path: path, Reason: reason}
}

// cache memoizes parsed paths keyed by an xxhash digest of the raw string,
// since the matcher recompiles nothing at eval time but the same path
// string recurs across many rules' WHERE/WITH/action templates. Collisions
// are resolved by storing the raw string alongside the parsed value.
type cacheEntry struct {
	raw string
	acc *Accessor
	err error
}

var parseCache = newShardedCache(64)

type shardedCache struct {
	shards []cacheShard
	mask   uint64
}

type cacheShard struct {
	mu      chanMutex
	entries map[uint64]cacheEntry
}

// chanMutex is a minimal mutual-exclusion primitive implemented with a
// buffered channel, avoiding a direct sync import purely for a single
// shard lock (kept tiny and allocation-free at steady state).
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	c := make(chanMutex, 1)
	c <- struct{}{}
	return c
}

func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

func newShardedCache(n int) *shardedCache {
	// n must be a power of two for the mask trick below.
	shards := make([]cacheShard, n)
	for i := range shards {
		shards[i] = cacheShard{mu: newChanMutex(), entries: make(map[uint64]cacheEntry)}
	}
	return &shardedCache{shards: shards, mask: uint64(n - 1)}
}

func (c *shardedCache) get(raw string) (*Accessor, error, bool) {
	h := xxhash.Sum64String(raw)
	shard := &c.shards[h&c.mask]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.entries[h]
	if !ok || entry.raw != raw {
		return nil, nil, false
	}
	return entry.acc, entry.err, true
}

func (c *shardedCache) put(raw string, acc *Accessor, err error) {
	h := xxhash.Sum64String(raw)
	shard := &c.shards[h&c.mask]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.entries[h] = cacheEntry{raw: raw, acc: acc, err: err}
}

// Parse compiles a path expression (the text between ${ and }, e.g.
// `event.payload.subject` or `_variables.rule1.x` or `@`) into an Accessor.
func Parse(path string) (*Accessor, error) {
	if acc, err, ok := parseCache.get(path); ok {
		return acc, err
	}
	acc, err := parse(path)
	parseCache.put(path, acc, err)
	return acc, err
}

func parse(path string) (*Accessor, error) {
	if path == "" {
		return nil, fmt.Errorf("accessor: empty path")
	}
	if path == "@" {
		return &Accessor{raw: path, segments: []segment{{kind: segField, field: "@"}}}, nil
	}

	segs := make([]segment, 0, 4)
	i := 0
	n := len(path)
	for i < n {
		if path[i] == '.' {
			return nil, fmt.Errorf("accessor: %q: unexpected '.'", path)
		}
		if path[i] == '"' {
			j := i + 1
			var sb strings.Builder
			for j < n && path[j] != '"' {
				sb.WriteByte(path[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("accessor: %q: unterminated quoted segment", path)
			}
			segs = append(segs, segment{kind: segField, field: sb.String()})
			i = j + 1
		} else {
			j := i
			for j < n && path[j] != '.' {
				j++
			}
			token := path[i:j]
			if token == "" {
				return nil, fmt.Errorf("accessor: %q: empty segment", path)
			}
			if idx, err := strconv.Atoi(token); err == nil {
				segs = append(segs, segment{kind: segIndex, index: idx})
			} else {
				segs = append(segs, segment{kind: segField, field: token})
			}
			i = j
		}
		if i < n {
			if path[i] != '.' {
				return nil, fmt.Errorf("accessor: %q: expected '.' separator at offset %d", path, i)
			}
			i++
			if i >= n {
				return nil, fmt.Errorf("accessor: %q: trailing '.'", path)
			}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("accessor: %q: no segments", path)
	}
	return &Accessor{raw: path, segments: segs}, nil
}
