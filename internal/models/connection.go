// ABOUTME: Connection is an active anonymous link between two endpoints
// ABOUTME: Unordered edge; each endpoint holds at most one except channels
package models

// Connection links exactly two endpoints. The edge is unordered: either side
// may have initiated it.
type Connection struct {
	A Endpoint `json:"a"`
	B Endpoint `json:"b"`
}

// Other returns the side of the edge that is not e, and whether e is part of
// the edge at all.
func (c Connection) Other(e Endpoint) (Endpoint, bool) {
	switch e {
	case c.A:
		return c.B, true
	case c.B:
		return c.A, true
	}
	return Endpoint{}, false
}
