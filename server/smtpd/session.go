package smtpd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/server/delivery"
)

type Session struct {
	backend *Backend
	ctx     context.Context
	remote  string

	sender     string
	recipients []string
}

func (s *Session) Log(format string, args ...interface{}) {
	logger.Debugf("SMTP[%s] "+format, append([]interface{}{s.remote}, args...)...)
}

func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	addr := helpers.NormalizeAddress(from)
	if addr != "" && !strings.Contains(addr, "@") {
		s.Log("invalid from address: %s", from)
		return &smtp.SMTPError{
			Code:         553,
			EnhancedCode: smtp.EnhancedCode{5, 1, 7},
			Message:      "Invalid sender",
		}
	}
	s.sender = addr
	s.Log("mail from=%s accepted", addr)
	return nil
}

func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	addr := helpers.NormalizeAddress(to)
	if !strings.Contains(addr, "@") {
		s.Log("invalid to address: %s", to)
		return &smtp.SMTPError{
			Code:         513,
			EnhancedCode: smtp.EnhancedCode{5, 0, 1},
			Message:      "Invalid recipient",
		}
	}
	s.recipients = append(s.recipients, addr)
	s.Log("recipient accepted: %s", addr)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "Bad sequence of commands (missing RCPT TO)",
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return s.internalError("failed to read message: %v", err)
	}
	s.Log("message data read (%d bytes)", buf.Len())

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	result, err := s.backend.pipeline.Deliver(ctx, s.sender, s.recipients, buf.Bytes())
	if err != nil {
		var blocked *delivery.BlockedAttachmentError
		if errors.As(err, &blocked) {
			s.Log("rejected: blocked attachment %s", blocked.Filename)
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 7, 1},
				Message:      blocked.Error(),
			}
		}
		return s.internalError("delivery failed: %v", err)
	}

	if result.RecordID == "" {
		// No local recipient kept the message; accept and discard.
		s.Log("message accepted with no local deliveries")
		return nil
	}
	s.Log("delivered %s to %d recipient(s)", result.RecordID, len(result.Recipients))
	return nil
}

func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *Session) Logout() error {
	s.backend.activeConnections.Add(-1)
	s.Log("session closed")
	return nil
}

func (s *Session) internalError(format string, args ...interface{}) error {
	logger.Errorf("SMTP[%s] "+format, append([]interface{}{s.remote}, args...)...)
	return &smtp.SMTPError{
		Code:         421,
		EnhancedCode: smtp.EnhancedCode{4, 4, 2},
		Message:      fmt.Sprintf(format, args...),
	}
}
