// ABOUTME: Development sub-commands: minting tokens and seeding user rows
// ABOUTME: Accounts are owned by the platform in production; these exist for local testing

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/dm-gateway/internal/auth"
	"github.com/2389/dm-gateway/internal/config"
	"github.com/2389/dm-gateway/internal/store"
)

// defaultTokenTTL is how long minted development tokens stay valid.
const defaultTokenTTL = 30 * 24 * time.Hour

// parseFlags reads "--name value" and "--name=value" pairs. Every flag
// takes a value; only names listed in allowed are accepted.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

// parseUserID parses a positive user id flag.
func parseUserID(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("user id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// runToken prints a JWT for the given user signed with the configured secret.
func runToken(args []string) error {
	flags, err := parseFlags(args, "user", "ttl")
	if err != nil {
		return err
	}
	userID, err := parseUserID(flags["user"])
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}

	ttl := defaultTokenTTL
	if raw := flags["ttl"]; raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid --ttl %q", raw)
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(userID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// runUser handles "user add".
func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return errors.New("usage: dm-gateway user add --id ID --username NAME [--avatar URL]")
	}

	flags, err := parseFlags(args[1:], "id", "username", "avatar")
	if err != nil {
		return err
	}
	userID, err := parseUserID(flags["id"])
	if err != nil {
		return fmt.Errorf("--id: %w", err)
	}
	username := strings.TrimSpace(flags["username"])
	if username == "" {
		return errors.New("--username is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	user := &store.User{ID: userID, Username: username, Avatar: flags["avatar"]}
	if err := s.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return fmt.Errorf("user %d or username %q already exists", userID, username)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Created user %d (%s)\n", user.ID, user.Username)
	return nil
}
