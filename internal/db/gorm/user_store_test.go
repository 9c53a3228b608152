package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptvault/pkg/models"
)

func TestUserStore(t *testing.T) {
	store := newTestStore(t)
	users := NewUserStore(store)
	ctx := context.Background()

	u, err := users.Create(ctx, "bob", "$2a$hash", "", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name, "display name defaults to the username")

	_, err = users.Create(ctx, "bob", "other", "", "")
	assert.ErrorIs(t, err, models.ErrDuplicate)

	creds, err := users.GetCredentials(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", creds.PasswordHash)
	assert.Equal(t, u.ID, creds.User.ID)

	_, err = users.GetCredentials(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFoundOrForbidden)

	require.NoError(t, users.TouchLogin(ctx, u.ID))

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.Email)

	_, err = users.GetByID(ctx, u.ID+1)
	assert.ErrorIs(t, err, models.ErrNotFoundOrForbidden)
}
