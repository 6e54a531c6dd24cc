// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// Kind tags an identity as a donor (user) or an organization (charity).
type Kind string

const (
	KindUser    Kind = "user"
	KindCharity Kind = "charity"
)

func (k Kind) Valid() bool {
	return k == KindUser || k == KindCharity
}

// Participant is one side of a chat, as shown to the other side.
type Participant struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}
