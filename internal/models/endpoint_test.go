// ABOUTME: Tests for the endpoint tagged union
package models

import "testing"

func TestEndpointConstructors(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		kind EndpointKind
		str  string
	}{
		{"user", UserEndpoint(7), EndpointUser, "user:7"},
		{"channel", ChannelEndpoint(12), EndpointChannel, "channel:12"},
		{"persona", PersonaEndpoint(3), EndpointPersona, "persona:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ep.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.ep.Kind, tt.kind)
			}
			if tt.ep.IsZero() {
				t.Error("IsZero() = true for a constructed endpoint")
			}
			if got := tt.ep.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestEndpointKindsDoNotCollide(t *testing.T) {
	// Same raw id in different namespaces must compare unequal.
	if UserEndpoint(5) == ChannelEndpoint(5) {
		t.Error("user:5 == channel:5")
	}
	if UserEndpoint(5) == PersonaEndpoint(5) {
		t.Error("user:5 == persona:5")
	}
}

func TestEndpointZeroValue(t *testing.T) {
	var e Endpoint
	if !e.IsZero() {
		t.Error("IsZero() = false for zero value")
	}
}

func TestConnectionOther(t *testing.T) {
	c := Connection{A: UserEndpoint(1), B: ChannelEndpoint(2)}

	if got, ok := c.Other(UserEndpoint(1)); !ok || got != ChannelEndpoint(2) {
		t.Errorf("Other(A) = %v, %v, want channel:2, true", got, ok)
	}
	if got, ok := c.Other(ChannelEndpoint(2)); !ok || got != UserEndpoint(1) {
		t.Errorf("Other(B) = %v, %v, want user:1, true", got, ok)
	}
	if _, ok := c.Other(PersonaEndpoint(9)); ok {
		t.Error("Other(stranger) reported membership")
	}
}
