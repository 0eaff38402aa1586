// Package guard screens inbound messages before delivery processing.
// Currently it enforces the attachment extension deny list.
package guard

import (
	"github.com/emersion/go-message"
	"github.com/okapimail/okapi/consts"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/pkg/metrics"
)

// Guard rejects messages carrying attachments with dangerous extensions.
type Guard struct {
	blocked []string
}

// New returns a Guard with the default deny list.
func New() *Guard {
	return &Guard{blocked: consts.BlockedAttachmentExtensions}
}

// NewWithExtensions returns a Guard using the given deny list.
func NewWithExtensions(extensions []string) *Guard {
	return &Guard{blocked: extensions}
}

// Check returns the filename of the first blocked attachment, or "" when
// the message is acceptable. Matching is on the final extension only,
// case-insensitively, so "invoice.pdf.exe" is blocked and "notes.txt.docx"
// is not.
func (g *Guard) Check(entity *message.Entity) string {
	for _, name := range helpers.AttachmentFilenames(entity) {
		if helpers.HasBlockedExtension(name, g.blocked) {
			metrics.AttachmentsBlocked.Inc()
			return name
		}
	}
	return ""
}
