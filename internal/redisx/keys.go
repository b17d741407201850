package redisx

import "time"

const (
	// Full catalog snapshot: catalog:all -> JSON array of products.
	KeyCatalog = "catalog:all"
)

var (
	TTLCatalog = 5 * time.Minute
)
