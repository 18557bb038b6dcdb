package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/brokerhub/brokerhub/internal/db"
)

const adminUsage = `Usage:
  brokerhub admin reset-password --email <address> [--password <new>] [--db-dsn <dsn>]

Resets an account password out of band and revokes any outstanding
self-service reset tokens for the account. When --password is omitted a
random one is generated and printed. --db-dsn falls back to BH_DB_DSN.
`

func runAdmin(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, adminUsage)
		return 2
	}

	if args[0] != "reset-password" {
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n%s", args[0], adminUsage)
		return 2
	}

	return runResetPassword(args[1:])
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "New password (generated when empty)")
	dbDSN := fs.String("db-dsn", os.Getenv("BH_DB_DSN"), "Postgres DSN")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}
	dsn := strings.TrimSpace(*dbDSN)
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set BH_DB_DSN)")
		return 2
	}

	newPassword := *password
	generated := newPassword == ""
	if generated {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		newPassword = pw
	}
	if len(newPassword) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := auth.ForcePasswordReset(ctx, pool, addr, newPassword); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			fmt.Fprintf(os.Stderr, "No user found with email %q\n", addr)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to reset password: %v\n", err)
		}
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, newPassword)
	}
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
