package helpers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
)

// ExtractPlaintextBody walks the MIME structure of the message and returns
// the first text/plain part. If the message only carries HTML, the HTML is
// converted to plain text.
func ExtractPlaintextBody(msg *message.Entity) (*string, error) {
	var plaintextBody *string
	var htmlBody *string

	var walk func(entity *message.Entity) error
	walk = func(entity *message.Entity) error {
		mediaType, _, err := entity.Header.ContentType()
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			mr := entity.MultipartReader()
			if mr == nil {
				return nil
			}
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				if err := walk(part); err != nil {
					return err
				}
			}
			return nil
		}

		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return err
		}
		switch mediaType {
		case "text/plain":
			if plaintextBody == nil {
				s := string(content)
				plaintextBody = &s
			}
		case "text/html":
			if htmlBody == nil {
				s := string(content)
				htmlBody = &s
			}
		}
		return nil
	}

	if err := walk(msg); err != nil {
		return nil, err
	}

	if plaintextBody == nil && htmlBody != nil {
		plaintext := html2text.HTML2Text(*htmlBody)
		plaintextBody = &plaintext
	}
	if plaintextBody == nil {
		empty := ""
		plaintextBody = &empty
	}
	return plaintextBody, nil
}

// AttachmentFilenames walks the MIME structure and collects the declared
// filename of every attachment part. Inline parts without a filename are
// not attachments for screening purposes.
func AttachmentFilenames(msg *message.Entity) []string {
	var names []string

	var walk func(entity *message.Entity)
	walk = func(entity *message.Entity) {
		mediaType, ctParams, _ := entity.Header.ContentType()
		if strings.HasPrefix(mediaType, "multipart/") {
			mr := entity.MultipartReader()
			if mr == nil {
				return
			}
			for {
				part, err := mr.NextPart()
				if err != nil {
					return
				}
				walk(part)
			}
		}

		disposition, dispParams, _ := entity.Header.ContentDisposition()
		filename := dispParams["filename"]
		if filename == "" {
			filename = ctParams["name"]
		}
		if filename == "" {
			return
		}
		if disposition == "attachment" || disposition == "inline" || disposition == "" {
			names = append(names, filename)
		}
	}

	walk(msg)
	return names
}

// HasBlockedExtension reports whether filename ends in one of the given
// extensions, case-insensitively.
func HasBlockedExtension(filename string, blocked []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, b := range blocked {
		if ext == b {
			return true
		}
	}
	return false
}

// ExtractAddresses returns the normalized email addresses from an address
// header field such as "To" or "Cc". Unparseable fields yield nil.
func ExtractAddresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(list))
	for _, a := range list {
		if a.Address != "" {
			addrs = append(addrs, NormalizeAddress(a.Address))
		}
	}
	return addrs
}

// SenderAddress returns the normalized address of the first From mailbox,
// or "" when absent.
func SenderAddress(h mail.Header) string {
	from := ExtractAddresses(h, "From")
	if len(from) == 0 {
		return ""
	}
	return from[0]
}

// ReferenceChain returns the ancestor message identifiers of a reply,
// root-first. The References header carries the full chain; when it is
// missing, In-Reply-To supplies the direct parent only.
func ReferenceChain(h mail.Header) []string {
	refs, err := h.MsgIDList("References")
	if err == nil && len(refs) > 0 {
		return refs
	}
	inReplyTo, err := h.MsgIDList("In-Reply-To")
	if err == nil && len(inReplyTo) > 0 {
		return inReplyTo
	}
	return nil
}

// LooksAutoGenerated reports whether the headers mark the message as
// machine-generated: an Auto-Submitted value other than "no", or a bulk
// Precedence marker.
func LooksAutoGenerated(h mail.Header) bool {
	autoSubmitted := strings.ToLower(strings.TrimSpace(h.Get("Auto-Submitted")))
	if autoSubmitted != "" && autoSubmitted != "no" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(h.Get("Precedence"))) {
	case "bulk", "junk", "list", "auto_reply":
		return true
	}
	return h.Get("X-Auto-Response-Suppress") != ""
}

// HasBulkMarkers reports whether the headers identify list or bulk mail.
// Used for the Focused classification when no labels are available.
func HasBulkMarkers(h mail.Header) bool {
	switch strings.ToLower(strings.TrimSpace(h.Get("Precedence"))) {
	case "bulk", "junk", "list":
		return true
	}
	if h.Get("List-Id") != "" || h.Get("List-Unsubscribe") != "" {
		return true
	}
	return false
}

// ListID returns the value of the List-Id header, or "" when absent.
func ListID(h mail.Header) string {
	return strings.TrimSpace(h.Get("List-Id"))
}
