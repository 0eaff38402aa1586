// Package delivery orchestrates inbound message processing: attachment
// screening, recipient resolution, per-recipient junk filtering and rule
// evaluation, labeling, and the transactional fan-out write.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/db"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/pkg/metrics"
	"github.com/okapimail/okapi/server/guard"
	"github.com/okapimail/okapi/server/notify"
	"github.com/okapimail/okapi/server/rules"
)

// FallbackSubject is stored when the raw content cannot be parsed as a
// message. The bytes are still persisted verbatim.
const FallbackSubject = "No Subject (Raw Message)"

// BlockedAttachmentError reports a message rejected by the attachment
// guard. The SMTP layer maps it to a permanent failure.
type BlockedAttachmentError struct {
	Filename string
}

func (e *BlockedAttachmentError) Error() string {
	return fmt.Sprintf("attachment type not allowed: %s", e.Filename)
}

// Store is the persistence surface the pipeline writes through. *db.Database
// satisfies it; tests substitute fakes.
type Store interface {
	ListLocalAddresses(ctx context.Context) (map[string]bool, error)
	GetUser(ctx context.Context, address string) (*db.User, error)
	CreateFolder(ctx context.Context, userAddress, name string) error
	InsertMessageWithStates(ctx context.Context, options *db.InsertMessageOptions, states []db.RecipientState) (string, error)
	HasRules(ctx context.Context, userAddress string) (bool, error)
	SeedDefaultRules(ctx context.Context, userAddress string, rules []db.Rule) error
	GetRules(ctx context.Context, userAddress string) ([]db.Rule, error)
}

// JunkFilter decides per recipient whether a sender's mail is junk.
type JunkFilter interface {
	IsJunk(ctx context.Context, userAddress, sender string) (bool, error)
}

// Labeler derives content labels for a message. May be nil.
type Labeler interface {
	Classify(ctx context.Context, sender, subject, body string) []string
}

// Pipeline processes one inbound message end to end.
type Pipeline struct {
	store    Store
	guard    *guard.Guard
	junk     JunkFilter
	labeler  Labeler
	notifier notify.Notifier
}

func NewPipeline(store Store, g *guard.Guard, junk JunkFilter, labeler Labeler, notifier notify.Notifier) *Pipeline {
	if g == nil {
		g = guard.New()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &Pipeline{store: store, guard: g, junk: junk, labeler: labeler, notifier: notifier}
}

// Result summarizes one delivery.
type Result struct {
	RecordID   string   // empty when every recipient was dropped
	Recipients []string // recipients that received a mailbox state
}

// Deliver runs the full pipeline for one message. envelopeFrom and
// envelopeRcpts come from the SMTP transaction; header recipients take
// precedence for resolution, with the envelope as fallback for malformed
// messages. A message addressed to no local user is accepted and dropped.
func (p *Pipeline) Deliver(ctx context.Context, envelopeFrom string, envelopeRcpts []string, raw []byte) (res *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "delivered"
		switch {
		case err != nil:
			outcome = "error"
			var blocked *BlockedAttachmentError
			if errors.As(err, &blocked) {
				outcome = "blocked"
			}
		case res != nil && res.RecordID == "":
			outcome = "dropped"
		}
		metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
		metrics.DeliveryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()
	metrics.MessageSizeBytes.Observe(float64(len(raw)))

	// The guard walks the MIME parts, which consumes the body stream, so it
	// gets its own parse of the raw bytes.
	if entity, perr := message.Read(bytes.NewReader(raw)); perr == nil || message.IsUnknownCharset(perr) {
		if name := p.guard.Check(entity); name != "" {
			logger.Warnf("delivery: rejected message from %s with blocked attachment %q", envelopeFrom, name)
			return nil, &BlockedAttachmentError{Filename: name}
		}
	}

	parsed := parseMessage(raw, envelopeFrom)

	recipients, err := p.resolveRecipients(ctx, parsed, envelopeRcpts)
	if err != nil {
		return nil, err
	}
	metrics.RecipientsPerDelivery.Observe(float64(len(recipients)))
	if len(recipients) == 0 {
		logger.Debugf("delivery: no local recipients for message from %s, dropping", parsed.sender)
		return &Result{}, nil
	}

	// The classifier runs at most once per message, on first use, and its
	// labels are shared across recipients.
	classifierLabels := sync.OnceValue(func() []string {
		if p.labeler == nil {
			return nil
		}
		return p.labeler.Classify(ctx, parsed.sender, parsed.subject, parsed.body)
	})

	var states []db.RecipientState
	for _, rcpt := range recipients {
		state, keep, err := p.routeRecipient(ctx, rcpt, parsed, classifierLabels)
		if err != nil {
			return nil, err
		}
		if keep {
			states = append(states, state)
		}
	}
	if len(states) == 0 {
		logger.Debugf("delivery: all recipients dropped message from %s", parsed.sender)
		return &Result{}, nil
	}

	id, err := p.store.InsertMessageWithStates(ctx, &db.InsertMessageOptions{
		From:         parsed.from,
		To:           parsed.to,
		Subject:      parsed.subject,
		SentDate:     parsed.sentDate,
		MessageID:    parsed.messageID,
		ReferenceIDs: parsed.references,
		RawContent:   raw,
	}, states)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	result := &Result{RecordID: id}
	for _, state := range states {
		result.Recipients = append(result.Recipients, state.UserAddress)
		folder := consts.FolderInbox
		if state.Folder != nil {
			folder = *state.Folder
		}
		p.notifier.MessageDelivered(ctx, notify.Event{
			UserAddress: state.UserAddress,
			MessageID:   id,
			Folder:      folder,
			Subject:     parsed.subject,
			Focused:     state.IsFocused,
		})
	}
	return result, nil
}

// routeRecipient produces one recipient's mailbox state. keep is false
// when a rule deleted the message for this recipient; a delete action
// only drops the message when the firing rule also stopped processing,
// otherwise the aggregated folder and labels still apply.
func (p *Pipeline) routeRecipient(ctx context.Context, rcpt string, parsed *parsedMessage, classifierLabels func() []string) (db.RecipientState, bool, error) {
	state := db.RecipientState{UserAddress: rcpt}

	isJunk, err := p.junk.IsJunk(ctx, rcpt, parsed.sender)
	if err != nil {
		return state, false, fmt.Errorf("junk check for %s: %w", rcpt, err)
	}
	if isJunk {
		junk := consts.FolderJunk
		state.Folder = &junk
		state.IsFocused = false
		return state, true, nil
	}

	userRules, err := rules.LoadRules(ctx, p.store, rcpt)
	if err != nil {
		return state, false, fmt.Errorf("loading rules for %s: %w", rcpt, err)
	}

	outcome := rules.Evaluate(userRules, parsed.facts)
	if outcome.Deleted && outcome.StopProcessing {
		return state, false, nil
	}

	// The classifier only fills in when rules produced no labels, and only
	// for recipients who opted into auto-labeling.
	labels := outcome.Labels
	if len(labels) == 0 && p.labeler != nil {
		if user, err := p.store.GetUser(ctx, rcpt); err == nil && user.AutoLabel {
			labels = classifierLabels()
		}
	}

	if outcome.TargetFolder != nil && *outcome.TargetFolder != "" {
		if err := p.store.CreateFolder(ctx, rcpt, *outcome.TargetFolder); err != nil {
			return state, false, fmt.Errorf("creating folder %q for %s: %w", *outcome.TargetFolder, rcpt, err)
		}
		state.Folder = outcome.TargetFolder
	}

	state.IsRead = outcome.MarkAsRead
	state.IsFlagged = outcome.Flagged
	state.Labels = strings.Join(labels, ",")
	state.IsFocused = isFocused(labels, parsed)
	return state, true, nil
}

// resolveRecipients intersects the message's To and Cc addresses with the
// local user set. When the message is unparseable, the SMTP envelope
// recipients stand in for the headers.
func (p *Pipeline) resolveRecipients(ctx context.Context, parsed *parsedMessage, envelopeRcpts []string) ([]string, error) {
	local, err := p.store.ListLocalAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local users: %w", err)
	}

	candidates := parsed.headerRecipients
	if parsed.entity == nil || len(candidates) == 0 {
		candidates = envelopeRcpts
	}

	var recipients []string
	seen := make(map[string]bool)
	for _, addr := range candidates {
		addr = helpers.NormalizeAddress(addr)
		if addr == "" || seen[addr] || !local[addr] {
			continue
		}
		seen[addr] = true
		recipients = append(recipients, addr)
	}
	return recipients, nil
}

// isFocused computes the Inbox focus flag. A labeled message is focused
// unless a bulk label is present; an unlabeled one falls back to the raw
// header markers.
func isFocused(labels []string, parsed *parsedMessage) bool {
	if len(labels) > 0 {
		for _, label := range labels {
			for _, bulk := range consts.BulkLabels {
				if strings.EqualFold(label, bulk) {
					return false
				}
			}
		}
		return true
	}
	return !parsed.bulkMarkers
}

// parsedMessage caches everything the pipeline extracts from the raw bytes.
type parsedMessage struct {
	entity           *message.Entity // nil when parsing failed
	from             string
	to               string
	sender           string
	subject          string
	sentDate         time.Time
	messageID        string
	references       []string
	headerRecipients []string
	body             string
	bulkMarkers      bool
	facts            rules.Facts
}

// parseMessage extracts envelope and routing facts from the raw bytes. It
// never fails: an unparseable message degrades to the fallback subject and
// envelope-based routing.
func parseMessage(raw []byte, envelopeFrom string) *parsedMessage {
	parsed := &parsedMessage{
		from:     envelopeFrom,
		sender:   helpers.NormalizeAddress(envelopeFrom),
		subject:  FallbackSubject,
		sentDate: time.Now(),
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		logger.Warnf("delivery: failed to parse message: %v", err)
		parsed.facts = rules.Facts{Sender: parsed.sender, Subject: parsed.subject}
		return parsed
	}
	parsed.entity = entity
	h := mail.Header{Header: entity.Header}

	if sender := helpers.SenderAddress(h); sender != "" {
		parsed.sender = sender
	}
	if fromList, err := h.Text("From"); err == nil && fromList != "" {
		parsed.from = fromList
	}
	if toList, err := h.Text("To"); err == nil {
		parsed.to = toList
	}
	if subject, err := h.Subject(); err == nil && subject != "" {
		parsed.subject = subject
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		parsed.sentDate = date
	}
	if msgID, err := h.MessageID(); err == nil {
		parsed.messageID = msgID
	}
	parsed.references = helpers.ReferenceChain(h)

	parsed.headerRecipients = append(
		helpers.ExtractAddresses(h, "To"),
		helpers.ExtractAddresses(h, "Cc")...)

	if body, err := helpers.ExtractPlaintextBody(entity); err == nil && body != nil {
		parsed.body = *body
	}

	parsed.bulkMarkers = helpers.HasBulkMarkers(h)
	parsed.facts = rules.Facts{
		Sender:        parsed.sender,
		Subject:       parsed.subject,
		ListID:        helpers.ListID(h),
		AutoGenerated: helpers.LooksAutoGenerated(h),
	}
	return parsed
}
