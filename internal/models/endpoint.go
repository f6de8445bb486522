// ABOUTME: Endpoint is the tagged union of relay participants
// ABOUTME: A user, a channel, or a persona, each in its own id namespace
package models

import "fmt"

// EndpointKind discriminates the three participant namespaces.
type EndpointKind int

const (
	EndpointUser EndpointKind = iota + 1
	EndpointChannel
	EndpointPersona
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointUser:
		return "user"
	case EndpointChannel:
		return "channel"
	case EndpointPersona:
		return "persona"
	}
	return "unknown"
}

// Endpoint identifies one addressable relay participant. The zero value is
// not a valid endpoint.
type Endpoint struct {
	Kind EndpointKind `db:"kind" json:"kind"`
	ID   int64        `db:"id" json:"id"`
}

// UserEndpoint addresses a platform user.
func UserEndpoint(id int64) Endpoint {
	return Endpoint{Kind: EndpointUser, ID: id}
}

// ChannelEndpoint addresses a shared channel.
func ChannelEndpoint(id int64) Endpoint {
	return Endpoint{Kind: EndpointChannel, ID: id}
}

// PersonaEndpoint addresses a persona by its persona id.
func PersonaEndpoint(id int64) Endpoint {
	return Endpoint{Kind: EndpointPersona, ID: id}
}

// IsZero reports whether e carries no endpoint.
func (e Endpoint) IsZero() bool {
	return e.Kind == 0
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Kind, e.ID)
}
