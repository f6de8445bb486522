// ABOUTME: Persona represents an ephemeral pseudonymous identity
// ABOUTME: Owned by exactly one user, soft-deleted via the active flag
package models

// Persona is a pseudonymous identity usable in place of its owner's real
// identity. Inactive personas are invisible to every query except by-id
// lookups.
type Persona struct {
	ID       int64  `db:"id" json:"id"`
	UserID   int64  `db:"user_id" json:"user_id"`
	Name     string `db:"name" json:"name"`
	Temp     bool   `db:"temp" json:"temp"`
	Stock    bool   `db:"stock" json:"stock"`
	LastUsed int64  `db:"last_used" json:"last_used"`
	Active   bool   `db:"active" json:"active"`
}

// Endpoint returns the persona's relay endpoint.
func (p *Persona) Endpoint() Endpoint {
	return PersonaEndpoint(p.ID)
}
