package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCharity_MarshalJSON_HidesAccessToken(t *testing.T) {
	req := require.New(t)
	charity := Charity{ID: "charity-a", Nombre: "Cruz Azul", AccessToken: "APP_USR-123", PasswordHash: "hash"}

	raw, err := json.Marshal(Profile{Charity: &charity})
	req.NoError(err)

	var body map[string]map[string]any
	req.NoError(json.Unmarshal(raw, &body))
	req.Equal(true, body["charity"]["hasAccessToken"])
	req.Equal("Cruz Azul", body["charity"]["nombre"])
	req.NotContains(string(raw), "APP_USR-123")
	req.NotContains(string(raw), "hash")
}

func TestProfile_Participant(t *testing.T) {
	req := require.New(t)
	donor := Profile{User: &User{ID: "user-b", Nombre: "Ana", Apellido: "Lopez"}}

	req.Equal(Participant{ID: "user-b", Kind: KindUser, Name: "Ana Lopez"}, donor.Participant())
	req.Equal(KindCharity, Profile{Charity: &Charity{ID: "c"}}.Kind())
}
