package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// User is a donor account.
type User struct {
	ID           string    `json:"id"`
	Nombre       string    `json:"nombre"`
	Apellido     string    `json:"apellido"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Charity is an organization account able to receive donations.
// AccessToken is the payment-provider authorization and never leaves the server.
type Charity struct {
	ID           string    `json:"id"`
	Nombre       string    `json:"nombre"`
	Email        string    `json:"email"`
	Direccion    string    `json:"direccion"`
	Telefono     string    `json:"telefono"`
	Descripcion  string    `json:"descripcion"`
	AccessToken  string    `json:"-"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasAccessToken reports whether the charity linked its payment provider.
func (c Charity) HasAccessToken() bool {
	return c.AccessToken != ""
}

// MarshalJSON exposes the access token as a flag only.
func (c Charity) MarshalJSON() ([]byte, error) {
	type plain Charity
	return json.Marshal(struct {
		plain
		HasAccessToken bool `json:"hasAccessToken"`
	}{plain: plain(c), HasAccessToken: c.HasAccessToken()})
}

// Profile is exactly one of User or Charity.
type Profile struct {
	User    *User    `json:"user,omitempty"`
	Charity *Charity `json:"charity,omitempty"`
}

func (p Profile) Kind() Kind {
	if p.Charity != nil {
		return KindCharity
	}
	return KindUser
}

func (p Profile) ID() string {
	if p.Charity != nil {
		return p.Charity.ID
	}
	if p.User != nil {
		return p.User.ID
	}
	return ""
}

func (p Profile) Email() string {
	if p.Charity != nil {
		return p.Charity.Email
	}
	if p.User != nil {
		return p.User.Email
	}
	return ""
}

func (p Profile) PasswordHash() string {
	if p.Charity != nil {
		return p.Charity.PasswordHash
	}
	if p.User != nil {
		return p.User.PasswordHash
	}
	return ""
}

// DisplayName is "nombre apellido" for donors and "nombre" for charities.
func (p Profile) DisplayName() string {
	if p.Charity != nil {
		return p.Charity.Nombre
	}
	if p.User != nil {
		return strings.TrimSpace(p.User.Nombre + " " + p.User.Apellido)
	}
	return ""
}

func (p Profile) Participant() Participant {
	return Participant{ID: p.ID(), Kind: p.Kind(), Name: p.DisplayName()}
}
