// gentoken issues a development bearer token and optionally seeds the
// matching profile into the store, since the gateway rejects tokens
// whose user id resolves to nobody.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"

	"lingo-dm/auth"
	"lingo-dm/domain"
	"lingo-dm/repositories"
)

func main() {
	secret := flag.String("secret", "", "Signing secret, must match AUTH_TOKEN_SECRET")
	userID := flag.String("user", "", "User ID to embed in the token")
	name := flag.String("name", "", "Display name for the seeded profile")
	duration := flag.Duration("duration", 24*time.Hour, "Token validity")
	dbPath := flag.String("db", "", "Badger path; when set, the profile is upserted")
	flag.Parse()

	if *secret == "" || *userID == "" {
		log.Fatal("both -secret and -user are required")
	}

	if *dbPath != "" {
		db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.ERROR))
		if err != nil {
			log.Fatal("Error while opening Badger: ", err)
		}
		defer db.Close()

		displayName := *name
		if displayName == "" {
			displayName = *userID
		}
		profiles := repositories.NewProfileRepository(db)
		if err := profiles.Upsert(context.Background(), domain.Profile{ID: *userID, Name: displayName}); err != nil {
			log.Fatal("Error while seeding profile: ", err)
		}
		fmt.Printf("Profile %q seeded\n", *userID)
	}

	tokens := auth.NewTokenManager(*secret, *duration)
	token, err := tokens.Generate(*userID)
	if err != nil {
		log.Fatal("Error while generating token: ", err)
	}
	fmt.Println(token)
}
