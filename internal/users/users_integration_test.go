package users_test

import (
	"context"
	"testing"

	"shop-service/internal/stores/postgres/postgrestest"
	"shop-service/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndAuthenticate(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	conf, err := users.NewConf(db)
	require.NoError(t, err)

	nu := users.NewUser{Email: "Ada@Example.com", Username: "ada", Password: "s3cretpass", Role: "buyer"}
	u, err := conf.InsertUser(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.NotEqual(t, nu.Password, u.PasswordHash)

	_, err = conf.InsertUser(ctx, users.NewUser{Email: "ada@example.com", Username: "other", Password: "s3cretpass", Role: "buyer"})
	assert.ErrorIs(t, err, users.ErrDuplicate)

	_, err = conf.InsertUser(ctx, users.NewUser{Email: "other@example.com", Username: "ada", Password: "s3cretpass", Role: "seller"})
	assert.ErrorIs(t, err, users.ErrDuplicate)

	got, err := conf.Authenticate(ctx, "ADA@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "buyer", got.Role)

	_, err = conf.Authenticate(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = conf.Authenticate(ctx, "nobody@example.com", "s3cretpass")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
}
