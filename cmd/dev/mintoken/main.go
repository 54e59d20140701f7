package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"campusbooking/pkg/authn"
	"campusbooking/pkg/config"
)

func main() {
	var (
		user = flag.String("user", "", "user id to put in the token subject")
		role = flag.String("role", "student", "student, staff or admin")
		ttl  = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}
	r, err := authn.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Prefer env/.env (loaded by config.Load()).
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "missing JWT_SECRET in env/.env")
		os.Exit(2)
	}

	keys := authn.Keys{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience}
	tok, err := keys.Issue(authn.Identity{UserID: *user, Role: r}, time.Now(), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
