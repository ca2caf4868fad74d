package domain

import (
	"strings"

	"github.com/google/uuid"
)

// namespace scopes every content-addressed id minted by this package.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rdsgraph"))

func contentID(parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "|"))).String()
}

// ObjectID is stable for (scope, object type, ref code).
func ObjectID(scope, objectType, refCode string) string {
	return contentID("object", scope, objectType, refCode)
}

// RelationID is stable for (source, target, type).
func RelationID(sourceID, targetID, relType string) string {
	return contentID("relation", sourceID, targetID, relType)
}

// PowerNodeID is stable for (scope, key).
func PowerNodeID(scope, key string) string {
	return contentID("power_node", scope, key)
}

// PowerEdgeID is stable for (source, target, type).
func PowerEdgeID(sourceID, targetID, edgeType string) string {
	return contentID("power_edge", sourceID, targetID, edgeType)
}

// NewRelation builds a relation with its id filled in. Self-edges are
// rejected with ErrSelfRelation.
func NewRelation(sourceID, targetID, relType string) (Relation, error) {
	if sourceID == targetID {
		return Relation{}, NewValidationError("target_id", targetID, ErrSelfRelation)
	}
	if relType == "" {
		relType = RelFeedsPowerTo
	}
	return Relation{
		ID:       RelationID(sourceID, targetID, relType),
		SourceID: sourceID,
		TargetID: targetID,
		Type:     relType,
	}, nil
}
