package domain

import (
	"regexp"
	"strings"

	"github.com/WessleyAI/rdsgraph/engine/codes"
)

// Scopes are file or project identifiers; they end up in ids and URLs.
var scopeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

// ValidateScope checks that a scope identifier is usable.
func ValidateScope(scope string) error {
	if !scopeRegex.MatchString(scope) {
		return NewValidationError("scope", scope, ErrInvalidScope)
	}
	return nil
}

// ValidateObject checks an object before it is written.
func ValidateObject(o Object) error {
	if err := ValidateScope(o.Scope); err != nil {
		return err
	}
	if strings.TrimSpace(o.RefCode) == "" {
		return NewValidationError("ref_code", o.RefCode, ErrInvalidObject)
	}
	if o.ObjectType == "" {
		return NewValidationError("object_type", o.ObjectType, ErrInvalidObject)
	}
	if o.Origin != OriginExplicit && o.Origin != OriginVirtual {
		return NewValidationError("origin", string(o.Origin), ErrInvalidObject)
	}
	for _, a := range o.Aspects {
		if !codes.ValidAspectType(a.AspectType) {
			return NewValidationError("aspect_type", string(a.AspectType), ErrUnknownAspect)
		}
		if a.FullCode == "" {
			return NewValidationError("full_code", a.FullCode, ErrInvalidObject)
		}
	}
	return nil
}

// ValidateRelation rejects self-edges and missing endpoints.
func ValidateRelation(r Relation) error {
	if r.SourceID == "" {
		return NewValidationError("source_id", r.SourceID, ErrInvalidObject)
	}
	if r.TargetID == "" {
		return NewValidationError("target_id", r.TargetID, ErrInvalidObject)
	}
	if r.SourceID == r.TargetID {
		return NewValidationError("target_id", r.TargetID, ErrSelfRelation)
	}
	return nil
}
