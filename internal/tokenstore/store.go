// Package tokenstore persists the personid→token mapping returned by the
// Contributor Node after a successful load. The mapping is the only durable
// artifact of a run; teams that reconcile match results against their source
// systems keep it in a database rather than the mapping CSV alone.
package tokenstore

import "context"

// Token is one personid→token pair.
type Token struct {
	PersonID string
	Token    string
}

// Repository stores token mappings. Implementations live in subpackages
// (postgres, sqlite); callers depend only on this interface.
type Repository interface {
	// EnsureTable creates the fixed two-column mapping table when absent.
	EnsureTable(ctx context.Context) error
	// SaveTokens inserts the given mappings.
	SaveTokens(ctx context.Context, tokens []Token) error
}
