package pgstore

const (
	upsertObjectSQL = `
INSERT INTO rds_objects (id, scope, ref_code, name, object_type, origin, asset_code, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
ON CONFLICT (scope, object_type, ref_code) DO UPDATE SET
	name = EXCLUDED.name,
	asset_code = EXCLUDED.asset_code,
	metadata = EXCLUDED.metadata,
	updated_at = now()`

	insertAspectSQL = `
INSERT INTO rds_aspects (object_id, aspect_type, full_code, prefix, parent_code, hierarchy_level)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

	insertRelationSQL = `
INSERT INTO rds_relations (id, source_object_id, target_object_id, relation_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`

	upsertPowerNodeSQL = `
INSERT INTO rds_power_nodes (id, scope, full_code, short_code, parent_code, label, level, node_type, object_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	node_type = CASE
		WHEN rds_power_nodes.node_type = 'feeder' AND EXCLUDED.node_type = 'device' THEN rds_power_nodes.node_type
		ELSE EXCLUDED.node_type END,
	label = CASE
		WHEN EXCLUDED.label <> '' AND EXCLUDED.label <> EXCLUDED.short_code THEN EXCLUDED.label
		ELSE rds_power_nodes.label END,
	object_id = COALESCE(EXCLUDED.object_id, rds_power_nodes.object_id),
	parent_code = COALESCE(NULLIF(EXCLUDED.parent_code, ''), rds_power_nodes.parent_code)`

	insertPowerEdgeSQL = `
INSERT INTO rds_power_edges (id, scope, source_node_id, target_node_id, relation_type)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING`

	selectObjectSQL = `
SELECT id, scope, ref_code, name, object_type, origin, asset_code, metadata
FROM rds_objects WHERE id = $1`

	selectObjectAspectsSQL = `
SELECT object_id, aspect_type, full_code, prefix, parent_code, hierarchy_level
FROM rds_aspects WHERE object_id = $1
ORDER BY aspect_type, full_code`

	selectDownstreamSQL = `
SELECT id, source_object_id, target_object_id, relation_type
FROM rds_relations
WHERE source_object_id = $1 AND ($2::text = '' OR relation_type = $2)
ORDER BY id`

	selectUpstreamSQL = `
SELECT id, source_object_id, target_object_id, relation_type
FROM rds_relations
WHERE target_object_id = $1 AND ($2::text = '' OR relation_type = $2)
ORDER BY id`

	selectScopeAspectsSQL = `
SELECT a.object_id, a.aspect_type, a.full_code, a.prefix, a.parent_code, a.hierarchy_level,
	o.ref_code, o.name, o.object_type
FROM rds_aspects a JOIN rds_objects o ON o.id = a.object_id
WHERE o.scope = $1 AND ($2::text = '' OR a.aspect_type = $2)
ORDER BY a.aspect_type, a.hierarchy_level, a.full_code, o.ref_code`

	selectObjectIDsByCodeSQL = `
SELECT DISTINCT o.id, o.ref_code
FROM rds_aspects a JOIN rds_objects o ON o.id = a.object_id
WHERE o.scope = $1 AND a.full_code = $2
ORDER BY o.ref_code`

	selectPowerNodesSQL = `
SELECT id, scope, full_code, short_code, parent_code, label, level, node_type, COALESCE(object_id, '')
FROM rds_power_nodes WHERE scope = $1
ORDER BY level, full_code`

	selectPowerEdgesSQL = `
SELECT id, scope, source_node_id, target_node_id, relation_type
FROM rds_power_edges WHERE scope = $1
ORDER BY id`

	countObjectsSQL    = `SELECT object_type, count(*) FROM rds_objects WHERE scope = $1 GROUP BY object_type`
	countAspectsSQL    = `SELECT a.aspect_type, count(*) FROM rds_aspects a JOIN rds_objects o ON o.id = a.object_id WHERE o.scope = $1 GROUP BY a.aspect_type`
	countRelationsSQL  = `SELECT r.relation_type, count(*) FROM rds_relations r JOIN rds_objects o ON o.id = r.source_object_id WHERE o.scope = $1 GROUP BY r.relation_type`
	countPowerNodesSQL = `SELECT node_type, count(*) FROM rds_power_nodes WHERE scope = $1 GROUP BY node_type`
	countPowerEdgesSQL = `SELECT relation_type, count(*) FROM rds_power_edges WHERE scope = $1 GROUP BY relation_type`

	// clear order: relations, aspects, objects, power edges, power nodes
	deleteRelationsSQL = `
DELETE FROM rds_relations
WHERE source_object_id IN (SELECT id FROM rds_objects WHERE scope = $1)
	OR target_object_id IN (SELECT id FROM rds_objects WHERE scope = $1)`
	deleteAspectsSQL    = `DELETE FROM rds_aspects WHERE object_id IN (SELECT id FROM rds_objects WHERE scope = $1)`
	deleteObjectsSQL    = `DELETE FROM rds_objects WHERE scope = $1`
	deletePowerEdgesSQL = `DELETE FROM rds_power_edges WHERE scope = $1`
	deletePowerNodesSQL = `DELETE FROM rds_power_nodes WHERE scope = $1`
)
