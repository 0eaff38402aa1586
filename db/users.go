package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/helpers"
)

// User is a registered local mailbox owner.
type User struct {
	Address     string
	DisplayName string
	AutoLabel   bool
	CreatedAt   time.Time
}

// CreateUser registers a local mailbox address. The address is stored
// lowercase; re-creating an existing user is not an error.
func (db *Database) CreateUser(ctx context.Context, address, displayName string) error {
	address = helpers.NormalizeAddress(address)
	_, err := db.WritePool.Exec(ctx, `
		INSERT INTO users (address, display_name)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`, address, displayName)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", address, err)
	}
	return nil
}

// GetUser returns the user record for an address.
func (db *Database) GetUser(ctx context.Context, address string) (*User, error) {
	var u User
	err := db.ReadPool.QueryRow(ctx, `
		SELECT address, display_name, auto_label, created_at
		FROM users
		WHERE address = $1
	`, helpers.NormalizeAddress(address)).Scan(&u.Address, &u.DisplayName, &u.AutoLabel, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, consts.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user %s: %w", address, err)
	}
	return &u, nil
}

// ListLocalAddresses returns the set of registered mailbox addresses,
// already lowercase. This is the recipient directory snapshot used by
// recipient resolution.
func (db *Database) ListLocalAddresses(ctx context.Context) (map[string]bool, error) {
	rows, err := db.TimedQuery(ctx, "list_local_addresses", `SELECT address FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to list local addresses: %w", err)
	}
	defer rows.Close()

	addresses := make(map[string]bool)
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses[address] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}
	return addresses, nil
}

// SetAutoLabel toggles classifier-based labeling for a user.
func (db *Database) SetAutoLabel(ctx context.Context, address string, enabled bool) error {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE users SET auto_label = $2 WHERE address = $1
	`, helpers.NormalizeAddress(address), enabled)
	if err != nil {
		return fmt.Errorf("failed to update auto_label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrUserNotFound
	}
	return nil
}
