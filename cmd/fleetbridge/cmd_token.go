package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/auth"
	"github.com/fleetbridge/fleetbridge/internal/server"
)

// runToken mints an operator access token from the configured signing
// secret. There is no user store; whoever holds the secret can mint.
func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	subject := fs.String("subject", "", "token subject (observer id, required)")
	name := fs.String("name", "", "display name claim")
	role := fs.String("role", "", "role claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (default auth.access_token_ttl)")
	_ = fs.Parse(args)

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "token: -subject is required")
		os.Exit(2)
	}

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	secret := viperCfg.GetString("auth.jwt_secret")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "token: auth.jwt_secret is not configured")
		os.Exit(1)
	}

	defaultTTL := viperCfg.GetDuration("auth.access_token_ttl")
	if defaultTTL == 0 {
		defaultTTL = 15 * time.Minute
	}
	tokens := auth.NewTokenService([]byte(secret), defaultTTL)

	var tok string
	if *ttl > 0 {
		tok, err = tokens.IssueWithTTL(*subject, *name, *role, *ttl)
	} else {
		tok, err = tokens.Issue(*subject, *name, *role)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
