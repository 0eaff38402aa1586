package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/helpers"
)

// CreateFolder creates a user folder. Creating an existing folder is not
// an error; Inbox and the trash are virtual and never stored.
func (db *Database) CreateFolder(ctx context.Context, userAddress, name string) error {
	if name == "" || name == consts.FolderInbox || name == consts.FolderTrash {
		return nil
	}
	_, err := db.WritePool.Exec(ctx, `
		INSERT INTO folders (user_address, name)
		VALUES ($1, $2)
		ON CONFLICT (user_address, name) DO NOTHING
	`, helpers.NormalizeAddress(userAddress), name)
	if err != nil {
		return fmt.Errorf("failed to create folder '%s': %w", name, err)
	}
	return nil
}

// createFolderTx is CreateFolder inside a caller-owned transaction,
// used by rule seeding so folders and rules land atomically.
func createFolderTx(ctx context.Context, tx pgx.Tx, userAddress, name string) error {
	if name == "" || name == consts.FolderInbox || name == consts.FolderTrash {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO folders (user_address, name)
		VALUES ($1, $2)
		ON CONFLICT (user_address, name) DO NOTHING
	`, userAddress, name)
	return err
}

// GetFolders lists a user's folder names, sorted.
func (db *Database) GetFolders(ctx context.Context, userAddress string) ([]string, error) {
	rows, err := db.TimedQuery(ctx, "get_folders", `
		SELECT name FROM folders WHERE user_address = $1 ORDER BY name
	`, helpers.NormalizeAddress(userAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan folder name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// FolderExists reports whether the user has a folder with this name.
func (db *Database) FolderExists(ctx context.Context, userAddress, name string) (bool, error) {
	var exists bool
	err := db.ReadPool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM folders WHERE user_address = $1 AND name = $2)
	`, helpers.NormalizeAddress(userAddress), name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folder existence: %w", err)
	}
	return exists, nil
}

// DeleteFolder removes a folder. Messages filed in it move to the trash,
// matching the behavior users expect from folder deletion.
func (db *Database) DeleteFolder(ctx context.Context, userAddress, name string) error {
	userAddress = helpers.NormalizeAddress(userAddress)

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM folders WHERE user_address = $1 AND name = $2
	`, userAddress, name)
	if err != nil {
		return fmt.Errorf("failed to delete folder '%s': %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrFolderNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE message_states
		SET folder = NULL, is_deleted = TRUE
		WHERE user_address = $1 AND folder = $2
	`, userAddress, name)
	if err != nil {
		return fmt.Errorf("failed to move folder contents to trash: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit folder deletion: %v", err)
		return consts.ErrDBCommitTransactionFailed
	}
	return nil
}
