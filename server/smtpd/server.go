// Package smtpd is the inbound SMTP listener. Accepted messages feed the
// delivery pipeline; pipeline verdicts map back to SMTP replies.
package smtpd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/emersion/go-smtp"
	"github.com/okapimail/okapi/config"
	"github.com/okapimail/okapi/logger"
	"github.com/okapimail/okapi/server/delivery"
)

type Backend struct {
	hostname string
	pipeline *delivery.Pipeline
	server   *smtp.Server
	appCtx   context.Context
	debug    bool

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
}

// New builds the SMTP listener around the delivery pipeline.
func New(appCtx context.Context, hostname string, cfg *config.SMTPServerConfig, pipeline *delivery.Pipeline) (*Backend, error) {
	readTimeout, err := cfg.GetReadTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid smtp read_timeout: %w", err)
	}
	writeTimeout, err := cfg.GetWriteTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid smtp write_timeout: %w", err)
	}

	backend := &Backend{
		hostname: hostname,
		pipeline: pipeline,
		appCtx:   appCtx,
		debug:    cfg.Debug,
	}

	server := smtp.NewServer(backend)
	server.Addr = cfg.Addr
	server.Domain = hostname
	server.ReadTimeout = readTimeout
	server.WriteTimeout = writeTimeout
	server.MaxMessageBytes = cfg.MaxMessageSize
	server.MaxRecipients = cfg.MaxRecipients
	server.EnableSMTPUTF8 = true
	if cfg.Debug {
		server.Debug = os.Stdout
	}
	backend.server = server

	return backend, nil
}

func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.totalConnections.Add(1)
	b.activeConnections.Add(1)

	remote := "unknown"
	if addr := c.Conn().RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	logger.Debugf("SMTP: new connection from %s", remote)

	return &Session{backend: b, remote: remote, ctx: b.appCtx}, nil
}

// ListenAndServe blocks serving SMTP until Close is called.
func (b *Backend) ListenAndServe() error {
	logger.Infof("SMTP listening on %s", b.server.Addr)
	return b.server.ListenAndServe()
}

func (b *Backend) Close() error {
	return b.server.Close()
}
