package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lingo-dm/domain"
	"lingo-dm/errors"
)

func Test_Profile_Upsert_And_Resolve(t *testing.T) {
	req := require.New(t)
	directory := NewProfileRepository(openTestDB(t))
	ctx := context.Background()

	req.NoError(directory.Upsert(ctx, domain.Profile{ID: "u1", Name: "Alice"}))

	profile, err := directory.Resolve(ctx, "u1")
	req.NoError(err)
	req.Equal("Alice", profile.Name)
}

func Test_Profile_Resolve_Unknown_User(t *testing.T) {
	req := require.New(t)
	directory := NewProfileRepository(openTestDB(t))

	_, err := directory.Resolve(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrUnknownUser)
}
