// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package params

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Registry indexes parameter definitions by normalised key
type Registry struct {
	defs  []Def
	byKey map[string]int
}

// NewRegistry validates defs and builds a registry.
// Keys that normalise to the same form are rejected.
func NewRegistry(defs []Def) (*Registry, error) {
	r := &Registry{
		defs:  make([]Def, 0, len(defs)),
		byKey: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		d.Key = strings.ToUpper(d.Key)
		d.Category = strings.ToLower(d.Category)
		norm := NormalizeKey(d.Key)
		if prev, ok := r.byKey[norm]; ok {
			return nil, bmserr.Configuration("duplicate parameter key %s (also %s)", d.Key, r.defs[prev].Key)
		}
		r.byKey[norm] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// Lookup resolves a key in any supported spelling
func (r *Registry) Lookup(key string) (Def, error) {
	if r != nil {
		if i, ok := r.byKey[NormalizeKey(key)]; ok {
			return r.defs[i], nil
		}
	}
	return Def{}, bmserr.Value("unknown parameter key %q", key)
}

// ByCategory returns the parameters of a category in address order
func (r *Registry) ByCategory(category string) []Def {
	var out []Def
	if r == nil {
		return out
	}
	category = strings.ToLower(category)
	for _, d := range r.defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

// Categories returns every category name in sorted order
func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.defs {
		if d.Category != "" && !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out
}

// All returns every definition in load order
func (r *Registry) All() []Def {
	if r == nil {
		return nil
	}
	return append([]Def(nil), r.defs...)
}

// Len returns the number of definitions
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}

// NormalizeKey folds CELL_OVP, cell_ovp and cellOvp to one form
func NormalizeKey(key string) string {
	var sb strings.Builder
	for _, c := range key {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			sb.WriteRune(unicode.ToUpper(c))
		}
	}
	return sb.String()
}

// CamelKey converts CELL_OVP into cellOvp
func CamelKey(key string) string {
	parts := strings.FieldsFunc(strings.ToLower(key), func(c rune) bool {
		return c == '_' || c == '-' || c == ' '
	})
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
