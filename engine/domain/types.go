// Package domain defines the persisted model of an RDS import: objects,
// their aspect codes, structural relations, and the power-distribution graph.
package domain

import "github.com/WessleyAI/rdsgraph/engine/codes"

// Origin tells whether an object came from an input row or was synthesized
// as a missing ancestor.
type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginVirtual  Origin = "virtual"
)

// ObjectTypeSystem is the type given to synthesized ancestor objects.
const ObjectTypeSystem = "system"

// SystemSheet is the sheet name recorded on synthesized objects.
const SystemSheet = "SYSTEM_GENERATED"

// Object is an asset or a synthesized placeholder for an implied ancestor.
type Object struct {
	ID         string         `json:"id"`
	Scope      string         `json:"scope"`
	RefCode    string         `json:"ref_code"`
	Name       string         `json:"name"`
	ObjectType string         `json:"object_type"`
	Origin     Origin         `json:"origin"`
	AssetCode  string         `json:"asset_code,omitempty"`
	Metadata   ObjectMetadata `json:"metadata"`
	Aspects    []Aspect       `json:"aspects,omitempty"`
}

// ObjectMetadata records where an object came from.
type ObjectMetadata struct {
	Sheet    string `json:"sheet"`
	RowIndex int    `json:"row_index"`
	Source   string `json:"source"`
}

// Aspect links one object to one code of a given dimension.
type Aspect struct {
	ObjectID   string           `json:"object_id"`
	AspectType codes.AspectType `json:"aspect_type"`
	FullCode   string           `json:"full_code"`
	Prefix     string           `json:"prefix"`
	ParentCode string           `json:"parent_code,omitempty"`
	Level      int              `json:"hierarchy_level"`
}

// AspectFromCode builds an aspect for objectID from a parsed code.
func AspectFromCode(objectID string, c codes.Code) Aspect {
	return Aspect{
		ObjectID:   objectID,
		AspectType: c.AspectType,
		FullCode:   c.FullCode,
		Prefix:     c.Prefix,
		ParentCode: c.ParentCode,
		Level:      c.Level,
	}
}

// Relation types.
const (
	RelFeedsPowerTo = "feeds_power_to"
	RelPartOf       = "part_of"
	RelLocatedIn    = "located_in"
	RelControls     = "controls"
)

// Relation is a directed edge between two objects.
type Relation struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"relation_type"`
}

// Power node types.
const (
	NodeSource = "source"
	NodeBus    = "bus"
	NodeFeeder = "feeder"
	NodeDevice = "device"
)

// Power edge types.
const (
	EdgeHierarchy   = "hierarchy"
	EdgePowerSupply = "power_supply"
)

// DeviceKeyPrefix prefixes the key of a device node identified by asset code.
const DeviceKeyPrefix = "DEVICE:"

// PowerNode is a node of the power-distribution graph.
type PowerNode struct {
	ID         string `json:"id"`
	Scope      string `json:"scope"`
	Key        string `json:"full_code"`
	ShortCode  string `json:"short_code"`
	ParentCode string `json:"parent_code,omitempty"`
	Label      string `json:"label"`
	Level      int    `json:"level"`
	NodeType   string `json:"node_type"`
	ObjectID   string `json:"object_id,omitempty"`
}

// PowerEdge is a directed edge of the power-distribution graph.
type PowerEdge struct {
	ID       string `json:"id"`
	Scope    string `json:"scope"`
	SourceID string `json:"source_node_id"`
	TargetID string `json:"target_node_id"`
	Type     string `json:"relation_type"`
}

// ImportStats summarizes one import run.
type ImportStats struct {
	TotalRows             int        `json:"total_rows"`
	ParsedObjects         int        `json:"parsed_objects"`
	ObjectsCreated        int        `json:"objects_created"`
	AspectsCreated        int        `json:"aspects_created"`
	VirtualObjectsCreated int        `json:"virtual_objects_created"`
	RelationsCreated      int        `json:"relations_created"`
	PowerNodesCreated     int        `json:"power_nodes_created"`
	PowerEdgesCreated     int        `json:"power_edges_created"`
	Errors                []RowError `json:"errors"`
}

// ClearStats counts what a clear-scope deleted.
type ClearStats struct {
	ObjectsDeleted    int `json:"objects_deleted"`
	AspectsDeleted    int `json:"aspects_deleted"`
	RelationsDeleted  int `json:"relations_deleted"`
	PowerNodesDeleted int `json:"power_nodes_deleted"`
	PowerEdgesDeleted int `json:"power_edges_deleted"`
}

// ScopeStats counts objects and aspects in a scope by type.
type ScopeStats struct {
	Scope      string         `json:"scope"`
	Objects    map[string]int `json:"objects"`
	Aspects    map[string]int `json:"aspects"`
	Relations  map[string]int `json:"relations"`
	PowerNodes map[string]int `json:"power_nodes"`
	PowerEdges map[string]int `json:"power_edges"`
}

// TreeEntry is one row of an aspect tree listing.
type TreeEntry struct {
	Code        string           `json:"code"`
	ParentCode  string           `json:"parent_code,omitempty"`
	AspectType  codes.AspectType `json:"aspect_type"`
	Level       int              `json:"level"`
	Name        string           `json:"name"`
	ObjectID    string           `json:"object_id"`
	HasChildren bool             `json:"has_children"`
}

// Direction selects which way relations are followed.
type Direction string

const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
)

// MergeNodeType combines the type already stored for a power node with a
// newly derived one. A node that has been seen as a feeder stays a feeder.
func MergeNodeType(old, next string) string {
	if old == NodeFeeder && next == NodeDevice {
		return old
	}
	return next
}

// Merge folds a later upsert of the same node into n. The label is only
// replaced when the incoming label carries more than the short code.
func (n PowerNode) Merge(in PowerNode) PowerNode {
	n.NodeType = MergeNodeType(n.NodeType, in.NodeType)
	if in.Label != "" && in.Label != in.ShortCode {
		n.Label = in.Label
	}
	if in.ObjectID != "" {
		n.ObjectID = in.ObjectID
	}
	if in.ParentCode != "" {
		n.ParentCode = in.ParentCode
	}
	return n
}
