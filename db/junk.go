package db

import (
	"context"
	"fmt"

	"github.com/okapimail/okapi/helpers"
)

// IsSafeSender reports whether the sender is on the user's safe list.
// Both sides of the comparison are normalized, so list membership is
// case-insensitive.
func (db *Database) IsSafeSender(ctx context.Context, userAddress, sender string) (bool, error) {
	return db.senderListed(ctx, "safe_senders", userAddress, sender)
}

// IsBlockedSender reports whether the sender is on the user's block list.
func (db *Database) IsBlockedSender(ctx context.Context, userAddress, sender string) (bool, error) {
	return db.senderListed(ctx, "blocked_senders", userAddress, sender)
}

func (db *Database) senderListed(ctx context.Context, table, userAddress, sender string) (bool, error) {
	var exists bool
	err := db.ReadPool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM `+table+` WHERE user_address = $1 AND sender = $2)
	`, helpers.NormalizeAddress(userAddress), helpers.NormalizeAddress(sender)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return exists, nil
}

// AddSafeSender puts a sender on the user's safe list; re-adding is a no-op.
func (db *Database) AddSafeSender(ctx context.Context, userAddress, sender string) error {
	return db.addSender(ctx, "safe_senders", userAddress, sender)
}

// AddBlockedSender puts a sender on the user's block list; re-adding is a no-op.
func (db *Database) AddBlockedSender(ctx context.Context, userAddress, sender string) error {
	return db.addSender(ctx, "blocked_senders", userAddress, sender)
}

func (db *Database) addSender(ctx context.Context, table, userAddress, sender string) error {
	_, err := db.WritePool.Exec(ctx, `
		INSERT INTO `+table+` (user_address, sender)
		VALUES ($1, $2)
		ON CONFLICT (user_address, sender) DO NOTHING
	`, helpers.NormalizeAddress(userAddress), helpers.NormalizeAddress(sender))
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// RemoveSafeSender takes a sender off the safe list. Removing an absent
// entry is not an error.
func (db *Database) RemoveSafeSender(ctx context.Context, userAddress, sender string) error {
	return db.removeSender(ctx, "safe_senders", userAddress, sender)
}

// RemoveBlockedSender takes a sender off the block list.
func (db *Database) RemoveBlockedSender(ctx context.Context, userAddress, sender string) error {
	return db.removeSender(ctx, "blocked_senders", userAddress, sender)
}

func (db *Database) removeSender(ctx context.Context, table, userAddress, sender string) error {
	_, err := db.WritePool.Exec(ctx, `
		DELETE FROM `+table+` WHERE user_address = $1 AND sender = $2
	`, helpers.NormalizeAddress(userAddress), helpers.NormalizeAddress(sender))
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// ListSafeSenders returns the user's safe list in insertion order.
func (db *Database) ListSafeSenders(ctx context.Context, userAddress string) ([]string, error) {
	return db.listSenders(ctx, "safe_senders", userAddress)
}

// ListBlockedSenders returns the user's block list in insertion order.
func (db *Database) ListBlockedSenders(ctx context.Context, userAddress string) ([]string, error) {
	return db.listSenders(ctx, "blocked_senders", userAddress)
}

func (db *Database) listSenders(ctx context.Context, table, userAddress string) ([]string, error) {
	rows, err := db.ReadPool.Query(ctx, `
		SELECT sender FROM `+table+` WHERE user_address = $1 ORDER BY created_at, sender
	`, helpers.NormalizeAddress(userAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, s)
	}
	return senders, rows.Err()
}
