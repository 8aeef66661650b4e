// Package main issues development bearer tokens signed with JWT_SECRET.
//
// Usage:
//
//	go run ./cmd/consult-token -sub consumer-1 -role consumer
//	go run ./cmd/consult-token -sub admin -role admin -ttl 1h
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmylchreest/consult-billing/internal/auth"
	"github.com/jmylchreest/consult-billing/internal/models"
)

func main() {
	sub := flag.String("sub", "", "Party ID to put in the sub claim")
	role := flag.String("role", string(models.RoleConsumer), "Role claim: consumer, provider or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	// Same .env as the server; real environment variables win.
	_ = godotenv.Load()

	token, err := issue(os.Getenv("JWT_SECRET"), os.Getenv("JWT_ISSUER"), *sub, models.Role(*role), *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(secret, issuer, sub string, role models.Role, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET is not set")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return auth.NewVerifier(secret, issuer).IssueToken(sub, role, ttl, now)
}
