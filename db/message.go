package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/pkg/metrics"
)

// Message is a canonical message record: envelope plus the byte-serialized
// original content. Written once during fan-out and mutated only by
// ReplaceMessageContent (draft editing).
type Message struct {
	ID           string
	From         string
	To           string
	Subject      string
	SentDate     time.Time
	MessageID    string   // RFC 5322 Message-ID header value
	ReferenceIDs []string // ancestor identifiers, root first
	RawContent   []byte
	CreatedAt    time.Time
}

// MessageState is one recipient's view of a canonical message record.
// A nil Folder means Inbox. IsDeleted is soft trash; the row is removed
// on permanent delete.
type MessageState struct {
	ID          int64
	UserAddress string
	MessageID   string
	Folder      *string
	IsRead      bool
	IsDeleted   bool
	IsFlagged   bool
	IsFocused   bool
	Labels      string // comma-joined label set
}

// RecipientState carries the per-recipient routing outcome into fan-out.
type RecipientState struct {
	UserAddress string
	Folder      *string
	Labels      string
	IsRead      bool
	IsFlagged   bool
	IsFocused   bool
}

// InsertMessageOptions holds the canonical record fields for fan-out.
type InsertMessageOptions struct {
	From         string
	To           string
	Subject      string
	SentDate     time.Time
	MessageID    string
	ReferenceIDs []string
	RawContent   []byte
}

// InsertMessageWithStates writes one canonical message record and one
// mailbox state row per recipient in a single transaction. Either all
// rows are durably written or none are. Returns the generated record ID.
func (db *Database) InsertMessageWithStates(ctx context.Context, options *InsertMessageOptions, states []RecipientState) (id string, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryDuration.WithLabelValues("message_insert", "write").Observe(time.Since(start).Seconds())
		metrics.DBQueriesTotal.WithLabelValues("message_insert", status, "write").Inc()
	}()

	if len(states) == 0 {
		return "", fmt.Errorf("refusing to insert message without recipient states")
	}

	if options.SentDate.IsZero() {
		options.SentDate = time.Now()
	}
	// nil would encode as SQL NULL, which the column forbids.
	if options.ReferenceIDs == nil {
		options.ReferenceIDs = []string{}
	}

	id = uuid.NewString()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return "", consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, from_addr, to_addrs, subject, sent_date, message_id, reference_ids, raw_content)
		VALUES (@id, @from_addr, @to_addrs, @subject, @sent_date, @message_id, @reference_ids, @raw_content)
	`, pgx.NamedArgs{
		"id":            id,
		"from_addr":     helpers.SanitizeUTF8(options.From),
		"to_addrs":      helpers.SanitizeUTF8(options.To),
		"subject":       helpers.SanitizeUTF8(options.Subject),
		"sent_date":     options.SentDate,
		"message_id":    helpers.SanitizeUTF8(options.MessageID),
		"reference_ids": options.ReferenceIDs,
		"raw_content":   options.RawContent,
	})
	if err != nil {
		log.Printf("[DB] failed to insert message record: %v", err)
		return "", consts.ErrDBInsertFailed
	}

	for _, state := range states {
		_, err = tx.Exec(ctx, `
			INSERT INTO message_states (user_address, message_id, folder, is_read, is_deleted, is_flagged, is_focused, labels)
			VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7)
		`, helpers.NormalizeAddress(state.UserAddress), id, state.Folder, state.IsRead, state.IsFlagged, state.IsFocused, state.Labels)
		if err != nil {
			log.Printf("[DB] failed to insert message state for %s: %v", state.UserAddress, err)
			return "", consts.ErrDBInsertFailed
		}
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit message fan-out: %v", err)
		return "", consts.ErrDBCommitTransactionFailed
	}
	return id, nil
}

// GetMessage returns the canonical record together with the recipient's
// state. The state is nil when the message exists but the user holds no
// reference to it.
func (db *Database) GetMessage(ctx context.Context, userAddress, id string) (*Message, *MessageState, error) {
	msg, err := db.getMessageRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var state MessageState
	err = db.ReadPool.QueryRow(ctx, `
		SELECT id, user_address, message_id, folder, is_read, is_deleted, is_flagged, is_focused, labels
		FROM message_states
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id).Scan(
		&state.ID, &state.UserAddress, &state.MessageID, &state.Folder,
		&state.IsRead, &state.IsDeleted, &state.IsFlagged, &state.IsFocused, &state.Labels)
	if err != nil {
		if err == pgx.ErrNoRows {
			return msg, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to query message state: %w", err)
	}
	return msg, &state, nil
}

func (db *Database) getMessageRecord(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := db.ReadPool.QueryRow(ctx, `
		SELECT id, from_addr, to_addrs, subject, sent_date, message_id, reference_ids, raw_content, created_at
		FROM messages
		WHERE id = $1
	`, id).Scan(&msg.ID, &msg.From, &msg.To, &msg.Subject, &msg.SentDate,
		&msg.MessageID, &msg.ReferenceIDs, &msg.RawContent, &msg.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message %s: %w", id, err)
	}
	return &msg, nil
}

// MessageFilter selects messages for listing. Folder defaults to Inbox;
// Focused applies only to the Inbox view.
type MessageFilter struct {
	Folder   string
	Search   string
	Focused  *bool
	Page     int // 1-based
	PageSize int
}

// ListItem is one row of a mailbox listing.
type ListItem struct {
	Message Message
	State   MessageState
}

// ListMessages returns a page of a user's messages, newest first, with the
// total match count for pagination.
func (db *Database) ListMessages(ctx context.Context, userAddress string, filter MessageFilter) ([]ListItem, int, error) {
	userAddress = helpers.NormalizeAddress(userAddress)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}

	where := `ms.user_address = @user`
	args := pgx.NamedArgs{"user": userAddress}

	switch {
	case filter.Folder == "" || filter.Folder == consts.FolderInbox:
		where += ` AND NOT ms.is_deleted AND ms.folder IS NULL`
		if filter.Focused != nil {
			where += ` AND ms.is_focused = @focused`
			args["focused"] = *filter.Focused
		}
	case filter.Folder == consts.FolderTrash:
		where += ` AND ms.is_deleted`
	default:
		where += ` AND NOT ms.is_deleted AND ms.folder = @folder`
		args["folder"] = filter.Folder
	}

	if filter.Search != "" {
		where += ` AND (m.subject ILIKE @search OR m.from_addr ILIKE @search OR m.to_addrs ILIKE @search)`
		args["search"] = "%" + filter.Search + "%"
	}

	var total int
	err := db.ReadPool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM message_states ms
		JOIN messages m ON m.id = ms.message_id
		WHERE `+where, args).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	args["limit"] = filter.PageSize
	args["offset"] = (filter.Page - 1) * filter.PageSize

	rows, err := db.ReadPool.Query(ctx, `
		SELECT m.id, m.from_addr, m.to_addrs, m.subject, m.sent_date, m.message_id, m.reference_ids, m.raw_content, m.created_at,
		       ms.id, ms.user_address, ms.message_id, ms.folder, ms.is_read, ms.is_deleted, ms.is_flagged, ms.is_focused, ms.labels
		FROM message_states ms
		JOIN messages m ON m.id = ms.message_id
		WHERE `+where+`
		ORDER BY m.sent_date DESC
		LIMIT @limit OFFSET @offset`, args)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	items, err := scanListItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanListItems(rows pgx.Rows) ([]ListItem, error) {
	var items []ListItem
	for rows.Next() {
		var it ListItem
		if err := rows.Scan(
			&it.Message.ID, &it.Message.From, &it.Message.To, &it.Message.Subject,
			&it.Message.SentDate, &it.Message.MessageID, &it.Message.ReferenceIDs,
			&it.Message.RawContent, &it.Message.CreatedAt,
			&it.State.ID, &it.State.UserAddress, &it.State.MessageID, &it.State.Folder,
			&it.State.IsRead, &it.State.IsDeleted, &it.State.IsFlagged, &it.State.IsFocused,
			&it.State.Labels,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return items, nil
}

// MarkMessageRead sets the read flag on a recipient's state.
func (db *Database) MarkMessageRead(ctx context.Context, userAddress, id string, read bool) error {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE message_states SET is_read = $3
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id, read)
	if err != nil {
		return fmt.Errorf("failed to update read flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// MarkAllRead marks every unread message in a folder as read.
func (db *Database) MarkAllRead(ctx context.Context, userAddress, folder string) error {
	where := `user_address = $1 AND NOT is_read`
	args := []any{helpers.NormalizeAddress(userAddress)}

	switch {
	case folder == "" || folder == consts.FolderInbox:
		where += ` AND NOT is_deleted AND folder IS NULL`
	case folder == consts.FolderTrash:
		where += ` AND is_deleted`
	default:
		where += ` AND NOT is_deleted AND folder = $2`
		args = append(args, folder)
	}

	_, err := db.WritePool.Exec(ctx, `UPDATE message_states SET is_read = TRUE WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("failed to mark all read: %w", err)
	}
	return nil
}

// MoveMessage files a message into a folder. Moving to Inbox clears the
// folder, moving to the trash sets the deleted flag; both clear the other
// state so a message never sits in two places.
func (db *Database) MoveMessage(ctx context.Context, userAddress, id, folderName string) error {
	var folder *string
	deleted := false
	switch folderName {
	case consts.FolderInbox, "":
		// nil folder, not deleted
	case consts.FolderTrash:
		deleted = true
	default:
		folder = &folderName
	}

	tag, err := db.WritePool.Exec(ctx, `
		UPDATE message_states SET folder = $3, is_deleted = $4
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id, folder, deleted)
	if err != nil {
		return fmt.Errorf("failed to move message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// CopyMessage duplicates the canonical record and creates an independent
// state row for it, so the copy's read/folder/deleted lifecycle diverges
// freely from the original's. Returns the new record ID.
func (db *Database) CopyMessage(ctx context.Context, userAddress, id, folderName string) (string, error) {
	userAddress = helpers.NormalizeAddress(userAddress)

	var folder *string
	deleted := false
	switch folderName {
	case consts.FolderInbox, "":
	case consts.FolderTrash:
		deleted = true
	default:
		folder = &folderName
	}

	newID := uuid.NewString()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return "", consts.ErrDBBeginTransactionFailed
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (id, from_addr, to_addrs, subject, sent_date, message_id, reference_ids, raw_content)
		SELECT $2, from_addr, to_addrs, subject, sent_date, message_id, reference_ids, raw_content
		FROM messages WHERE id = $1
	`, id, newID)
	if err != nil {
		return "", fmt.Errorf("failed to copy message record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", consts.ErrMessageNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message_states (user_address, message_id, folder, is_read, is_deleted, is_flagged, is_focused, labels)
		VALUES ($1, $2, $3, FALSE, $4, FALSE, TRUE, '')
	`, userAddress, newID, folder, deleted)
	if err != nil {
		return "", fmt.Errorf("failed to create state for copy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[DB] failed to commit message copy: %v", err)
		return "", consts.ErrDBCommitTransactionFailed
	}
	return newID, nil
}

// DeleteMessage soft-deletes: the state moves to the trash view.
func (db *Database) DeleteMessage(ctx context.Context, userAddress, id string) error {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE message_states SET is_deleted = TRUE
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// PermanentDeleteMessage removes the recipient's state row. The canonical
// record is kept even when orphaned; reclaiming orphans is a separate
// maintenance concern, not part of the delete path.
func (db *Database) PermanentDeleteMessage(ctx context.Context, userAddress, id string) error {
	tag, err := db.WritePool.Exec(ctx, `
		DELETE FROM message_states
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id)
	if err != nil {
		return fmt.Errorf("failed to permanently delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// EmptyTrash removes every soft-deleted state row for the user.
func (db *Database) EmptyTrash(ctx context.Context, userAddress string) (int64, error) {
	tag, err := db.WritePool.Exec(ctx, `
		DELETE FROM message_states
		WHERE user_address = $1 AND is_deleted
	`, helpers.NormalizeAddress(userAddress))
	if err != nil {
		return 0, fmt.Errorf("failed to empty trash: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateMessageLabels replaces the comma-joined label set on a state.
func (db *Database) UpdateMessageLabels(ctx context.Context, userAddress, id, labels string) error {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE message_states SET labels = $3
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id, helpers.SanitizeUTF8(labels))
	if err != nil {
		return fmt.Errorf("failed to update labels: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// SetMessageFlagged sets or clears the flagged marker on a state.
func (db *Database) SetMessageFlagged(ctx context.Context, userAddress, id string, flagged bool) error {
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE message_states SET is_flagged = $3
		WHERE user_address = $1 AND message_id = $2
	`, helpers.NormalizeAddress(userAddress), id, flagged)
	if err != nil {
		return fmt.Errorf("failed to update flagged marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// ReplaceMessageContent overwrites a canonical record's envelope and raw
// content. Used for draft editing only; delivered mail is immutable.
func (db *Database) ReplaceMessageContent(ctx context.Context, id string, options *InsertMessageOptions) error {
	if options.ReferenceIDs == nil {
		options.ReferenceIDs = []string{}
	}
	tag, err := db.WritePool.Exec(ctx, `
		UPDATE messages
		SET from_addr = $2, to_addrs = $3, subject = $4, sent_date = $5, message_id = $6, reference_ids = $7, raw_content = $8
		WHERE id = $1
	`, id,
		helpers.SanitizeUTF8(options.From),
		helpers.SanitizeUTF8(options.To),
		helpers.SanitizeUTF8(options.Subject),
		options.SentDate,
		helpers.SanitizeUTF8(options.MessageID),
		options.ReferenceIDs,
		options.RawContent)
	if err != nil {
		return fmt.Errorf("failed to replace message content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrMessageNotFound
	}
	return nil
}

// GetUnreadCounts aggregates unread message counts per folder. The Inbox
// and trash appear under their display names.
func (db *Database) GetUnreadCounts(ctx context.Context, userAddress string) (map[string]int, error) {
	rows, err := db.TimedQuery(ctx, "unread_counts", `
		SELECT folder, is_deleted, COUNT(*)
		FROM message_states
		WHERE user_address = $1 AND NOT is_read
		GROUP BY folder, is_deleted
	`, helpers.NormalizeAddress(userAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var folder *string
		var deleted bool
		var n int
		if err := rows.Scan(&folder, &deleted, &n); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		switch {
		case deleted:
			counts[consts.FolderTrash] += n
		case folder == nil:
			counts[consts.FolderInbox] += n
		default:
			counts[*folder] += n
		}
	}
	return counts, rows.Err()
}
