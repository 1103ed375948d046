package sharing

import "time"

// ShareGrant is a time-bounded permission record granting a non-owner
// access to a document. At most one grant is active per (document, grantee)
// pair; a newer grant supersedes the old one.
type ShareGrant struct {
	ID         string
	DocumentID string
	GranteeID  string
	GranterID  string
	Level      Level
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the grant's expiry has passed. Grants without an
// expiry never expire; expiry is evaluated lazily at access time.
func (g ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
