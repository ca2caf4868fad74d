package topology

import (
	"errors"

	"github.com/WessleyAI/rdsgraph/engine/domain"
)

// ErrDirection is returned for a direction other than upstream or downstream.
var ErrDirection = errors.New("direction must be upstream or downstream")

// RelationType describes one supported relation.
type RelationType struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// RelationTypes lists the relation types traversals understand.
func RelationTypes() []RelationType {
	return []RelationType{
		{domain.RelFeedsPowerTo, "source supplies electrical power to target"},
		{domain.RelPartOf, "source is a component of target"},
		{domain.RelLocatedIn, "source is installed in target"},
		{domain.RelControls, "source controls target"},
	}
}

// ParseDirection maps user input onto a Direction.
func ParseDirection(s string) (domain.Direction, error) {
	switch domain.Direction(s) {
	case domain.Upstream, domain.Downstream:
		return domain.Direction(s), nil
	}
	return "", domain.NewValidationError("direction", s, ErrDirection)
}
