// Package codes parses reference designation codes (function "=", location
// "++", power supply "===") and expands them into their ancestor chains.
package codes

import (
	"errors"
	"fmt"
	"strings"
)

// AspectType is the classification dimension a code expresses.
type AspectType string

const (
	AspectFunction AspectType = "function"
	AspectLocation AspectType = "location"
	AspectPower    AspectType = "power"
)

// Separator splits a code body into segments.
const Separator = "."

// Prefix symbols, longest first. Order matters: "===" must be tried before "=".
var prefixes = []struct {
	symbol string
	aspect AspectType
}{
	{"===", AspectPower},
	{"++", AspectLocation},
	{"=", AspectFunction},
}

// ErrNotParseable is returned for empty input or input without a known prefix.
var ErrNotParseable = errors.New("code not parseable")

// ParseError wraps ErrNotParseable with the offending input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrNotParseable }

// Code is one parsed aspect string.
type Code struct {
	FullCode   string     `json:"full_code"`
	Prefix     string     `json:"prefix"`
	AspectType AspectType `json:"aspect_type"`
	Level      int        `json:"hierarchy_level"`
	ParentCode string     `json:"parent_code,omitempty"`
	Segments   []string   `json:"segments"`
}

// HasParent reports whether the code is below a root segment.
func (c Code) HasParent() bool { return c.ParentCode != "" }

// ShortCode returns the final segment.
func (c Code) ShortCode() string {
	if len(c.Segments) == 0 {
		return ""
	}
	return c.Segments[len(c.Segments)-1]
}

// PrefixFor returns the prefix symbol for an aspect type, or "" if unknown.
func PrefixFor(t AspectType) string {
	for _, p := range prefixes {
		if p.aspect == t {
			return p.symbol
		}
	}
	return ""
}

// AspectTypes lists the three dimensions in display order.
func AspectTypes() []AspectType {
	return []AspectType{AspectFunction, AspectLocation, AspectPower}
}

// ValidAspectType reports whether t is one of the three known dimensions.
func ValidAspectType(t AspectType) bool {
	return PrefixFor(t) != ""
}

// LooksLikeCode reports whether s starts with any known prefix symbol.
// Used to reject names that are really raw codes pasted into a name column.
func LooksLikeCode(s string) bool {
	_, _, ok := matchPrefix(strings.TrimSpace(s))
	return ok
}

// matchPrefix returns the longest prefix symbol s starts with.
func matchPrefix(s string) (string, AspectType, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p.symbol) {
			return p.symbol, p.aspect, true
		}
	}
	return "", "", false
}

// splitBody splits a code body on Separator, discarding empty segments.
func splitBody(body string) []string {
	parts := strings.Split(body, Separator)
	segs := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

func join(prefix string, segments []string) string {
	return prefix + strings.Join(segments, Separator)
}
