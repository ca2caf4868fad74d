package pgstore

import "context"

// schema mirrors the unique keys the importer relies on: objects on
// (scope, object_type, ref_code), aspects on (object, type, code), relations
// and power edges on (source, target, type).
const schema = `
CREATE TABLE IF NOT EXISTS rds_objects (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	ref_code    TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	object_type TEXT NOT NULL,
	origin      TEXT NOT NULL,
	asset_code  TEXT NOT NULL DEFAULT '',
	metadata    JSONB NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (scope, object_type, ref_code)
);

CREATE TABLE IF NOT EXISTS rds_aspects (
	object_id       TEXT NOT NULL REFERENCES rds_objects(id) ON DELETE CASCADE,
	aspect_type     TEXT NOT NULL,
	full_code       TEXT NOT NULL,
	prefix          TEXT NOT NULL,
	parent_code     TEXT NOT NULL DEFAULT '',
	hierarchy_level INT  NOT NULL,
	PRIMARY KEY (object_id, aspect_type, full_code)
);
CREATE INDEX IF NOT EXISTS rds_aspects_code_idx ON rds_aspects (full_code);

CREATE TABLE IF NOT EXISTS rds_relations (
	id               TEXT PRIMARY KEY,
	source_object_id TEXT NOT NULL REFERENCES rds_objects(id) ON DELETE CASCADE,
	target_object_id TEXT NOT NULL REFERENCES rds_objects(id) ON DELETE CASCADE,
	relation_type    TEXT NOT NULL,
	UNIQUE (source_object_id, target_object_id, relation_type),
	CHECK (source_object_id <> target_object_id)
);
CREATE INDEX IF NOT EXISTS rds_relations_target_idx ON rds_relations (target_object_id);

CREATE TABLE IF NOT EXISTS rds_power_nodes (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	full_code   TEXT NOT NULL,
	short_code  TEXT NOT NULL,
	parent_code TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	level       INT  NOT NULL,
	node_type   TEXT NOT NULL,
	object_id   TEXT REFERENCES rds_objects(id) ON DELETE SET NULL,
	UNIQUE (scope, full_code)
);

CREATE TABLE IF NOT EXISTS rds_power_edges (
	id             TEXT PRIMARY KEY,
	scope          TEXT NOT NULL,
	source_node_id TEXT NOT NULL REFERENCES rds_power_nodes(id) ON DELETE CASCADE,
	target_node_id TEXT NOT NULL REFERENCES rds_power_nodes(id) ON DELETE CASCADE,
	relation_type  TEXT NOT NULL,
	UNIQUE (source_node_id, target_node_id, relation_type)
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
