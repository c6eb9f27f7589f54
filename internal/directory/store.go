package directory

import "context"

// Store defines persistence for the company aggregate. Implementations must
// write a company and its children atomically and enforce a unique
// constraint on the normalized identity.
type Store interface {
	// GetByIdentity loads a company (with children) by its normalized
	// website identity. Returns nil when no company matches.
	GetByIdentity(ctx context.Context, identity string) (*Company, error)

	// GetByName loads a company by exact case-insensitive name match.
	// Returns nil when no company matches.
	GetByName(ctx context.Context, name string) (*Company, error)

	// Create inserts a new company with all of its children in one
	// transaction. A concurrent insert for the same identity surfaces as a
	// unique violation (db.IsUniqueViolation).
	Create(ctx context.Context, c *Company) error

	// Update persists merged scalar fields and appends children that have
	// no ID yet, in one transaction. Existing children are never touched,
	// and zero-ID children whose dedup key a concurrent merge already
	// committed are dropped rather than duplicated.
	Update(ctx context.Context, c *Company) error
}
