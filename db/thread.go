package db

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// GetThreadMessages returns every message of a conversation visible to the
// user, oldest first. The thread key is the Message-ID of the conversation
// root; a message belongs when it is the root itself or lists the root in
// its reference chain.
func (db *Database) GetThreadMessages(ctx context.Context, userAddress, threadKey string) ([]ListItem, error) {
	rows, err := db.TimedQuery(ctx, "thread_list", `
		SELECT m.id, m.from_addr, m.to_addrs, m.subject, m.sent_date, m.message_id, m.reference_ids, m.raw_content, m.created_at,
		       ms.id, ms.user_address, ms.message_id, ms.folder, ms.is_read, ms.is_deleted, ms.is_flagged, ms.is_focused, ms.labels
		FROM message_states ms
		JOIN messages m ON m.id = ms.message_id
		WHERE ms.user_address = $1
		  AND (m.message_id = $2 OR $2 = ANY(m.reference_ids))
		ORDER BY m.sent_date ASC
	`, helpers.NormalizeAddress(userAddress), threadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread: %w", err)
	}
	defer rows.Close()

	return scanListItems(rows)
}

// ThreadKey derives the conversation key for a message: the first entry of
// its reference chain, or its own Message-ID when it starts a thread.
func ThreadKey(m *Message) string {
	if len(m.ReferenceIDs) > 0 {
		return m.ReferenceIDs[0]
	}
	return m.MessageID
}

// RepairThreads backfills threading metadata for records written before
// reference chains were captured. It re-parses each candidate's raw
// content and fills in message_id and reference_ids. Safe to run
// repeatedly: records whose metadata is already present are never
// selected, and re-deriving the same values is harmless.
func (db *Database) RepairThreads(ctx context.Context, concurrency int) (repaired int64, err error) {
	if concurrency < 1 {
		concurrency = 4
	}

	rows, err := db.ReadPool.Query(ctx, `
		SELECT id, raw_content
		FROM messages
		WHERE message_id = '' AND reference_ids = '{}'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query repair candidates: %w", err)
	}

	type candidate struct {
		id  string
		raw []byte
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan repair candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating repair candidates: %w", err)
	}

	var count atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			entity, err := message.Read(bytes.NewReader(c.raw))
			if err != nil && !message.IsUnknownCharset(err) {
				logger.Debugf("thread repair: skipping unparseable message %s: %v", c.id, err)
				metrics.ThreadRepairMessages.WithLabelValues("skipped").Inc()
				return nil
			}
			h := mail.Header{Header: entity.Header}

			msgID, _ := h.MessageID()
			refs := helpers.ReferenceChain(h)
			if msgID == "" && len(refs) == 0 {
				metrics.ThreadRepairMessages.WithLabelValues("skipped").Inc()
				return nil
			}
			if refs == nil {
				refs = []string{}
			}

			_, err = db.WritePool.Exec(gctx, `
				UPDATE messages SET message_id = $2, reference_ids = $3 WHERE id = $1
			`, c.id, helpers.SanitizeUTF8(msgID), refs)
			if err != nil {
				metrics.ThreadRepairMessages.WithLabelValues("error").Inc()
				return fmt.Errorf("failed to update threading for %s: %w", c.id, err)
			}
			count.Add(1)
			metrics.ThreadRepairMessages.WithLabelValues("repaired").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return count.Load(), err
	}
	return count.Load(), nil
}
