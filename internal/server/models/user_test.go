package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestUser_JSONHidesEverything(t *testing.T) {
	u := &User{ID: "u1", Email: "a@b.c", PasswordHash: "$2a$secret", FirstName: "A", LastName: "B"}

	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))

	b, err = json.Marshal(u.Public())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","email":"a@b.c","first_name":"A","last_name":"B"}`, string(b))
	assert.NotContains(t, string(b), "secret")
}
