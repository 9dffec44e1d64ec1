package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"lingo-dm/domain"
	"lingo-dm/errors"
)

const profileKeyPrefix = "profile:"

// ProfileRepository is a minimal identity directory. Account signup
// and the friend graph are owned by the CRUD service; this subsystem
// only needs to resolve an authenticated user id to a profile before
// binding a connection.
type ProfileRepository struct {
	db *badger.DB
}

func NewProfileRepository(db *badger.DB) ProfileRepository {
	return ProfileRepository{db: db}
}

func (p ProfileRepository) Resolve(_ context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Profile{}, errors.ErrUnknownUser
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("resolve profile: %w", err)
	}
	return profile, nil
}

// Upsert writes a profile. Used for development seeding and tests.
func (p ProfileRepository) Upsert(_ context.Context, profile domain.Profile) error {
	if profile.ID == "" {
		return errors.ErrEmptyUserID
	}
	value, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.ID), value)
	})
}
