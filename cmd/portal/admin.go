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

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/atelierhq/portal/internal/audit"
	"github.com/atelierhq/portal/internal/auth"
	"github.com/atelierhq/portal/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "create-owner":
		return runCreateOwner(args[1:])
	case "reset-password":
		return runResetPassword(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  portal admin create-owner --email owner@example.com --display-name <name> [--password <pw>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  portal admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to PORTAL_DB_DSN.")
}

// runCreateOwner bootstraps the first OWNER account. Every other account
// enters through the invitation flow; the owner has to come from somewhere.
func runCreateOwner(args []string) int {
	fs := flag.NewFlagSet("create-owner", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var displayName string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Owner email")
	fs.StringVar(&password, "password", "", "Password (if empty, generates one)")
	fs.StringVar(&displayName, "display-name", "", "Display name")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to PORTAL_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	normalized, err := validation.NormalizeEmail(email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --email: %v\n", err)
		return 2
	}

	displayName = strings.TrimSpace(displayName)
	if err := validation.ValidateDisplayName(displayName); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --display-name: %v\n", err)
		return 2
	}

	dbDSN = resolveDSN(dbDSN)
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PORTAL_DB_DSN)")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if err := validation.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --password: %v\n", err)
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := accounts.NewService(pool)
	account, err := svc.Create(ctx, accounts.NewAccount{
		Email:        normalized,
		PasswordHash: passwordHash,
		Role:         accounts.RoleOwner,
		DisplayName:  displayName,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			fmt.Fprintf(os.Stderr, "An account already exists for %q\n", normalized)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to create owner: %v\n", err)
		return 1
	}

	auditor := audit.NewWriter(pool)
	if err := auditor.LogOwnerBootstrapped(ctx, account.ID, account.Email); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit record: %v\n", err)
	}

	fmt.Fprintf(os.Stdout, "Owner account created: %s (%s)\n", account.Email, account.ID)
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to PORTAL_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	dbDSN = resolveDSN(dbDSN)
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PORTAL_DB_DSN)")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if err := validation.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --password: %v\n", err)
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE LOWER(email) = LOWER($1)`, email, passwordHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func resolveDSN(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv("PORTAL_DB_DSN"))
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
