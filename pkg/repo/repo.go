// Package repo defines a generic read repository over labelled graph nodes
// and its Neo4j implementation.
package repo

import "context"

// Reader looks nodes up by id and lists them page by page.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// ListOpts controls pagination and filtering for List. Filter matches
// node properties by equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}

// DefaultLimit applies when ListOpts.Limit is not positive.
const DefaultLimit = 100
