// Package mail implements service.Transport over SMTP (wneessen/go-mail).
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// TLS modes.
const (
	TLSImplicit = "implicit" // SMTPS, port 465
	TLSStartTLS = "starttls" // mandatory STARTTLS, port 587
	TLSNone     = "none"     // plaintext, local relays only
)

// Config configures the SMTP transport.
type Config struct {
	Host        string
	Port        int
	TLS         string
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// Transport sends notifications over SMTP. One connection is dialed per
// message.
type Transport struct {
	cfg  Config
	opts []gomail.Option
}

// New validates cfg and returns a Transport.
func New(cfg Config) (*Transport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("mail: host is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSImplicit
	}

	opts := []gomail.Option{gomail.WithTimeout(cfg.Timeout)}
	switch strings.ToLower(cfg.TLS) {
	case TLSImplicit:
		opts = append(opts, gomail.WithSSL())
		if cfg.Port == 0 {
			cfg.Port = 465
		}
	case TLSStartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
		if cfg.Port == 0 {
			cfg.Port = 587
		}
	case TLSNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
		if cfg.Port == 0 {
			cfg.Port = 25
		}
	default:
		return nil, fmt.Errorf("mail: unknown tls mode %q", cfg.TLS)
	}
	opts = append(opts, gomail.WithPort(cfg.Port))

	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return &Transport{cfg: cfg, opts: opts}, nil
}

// Send dials the server and delivers msg. Failures are
// *service.CapabilityError wrapping domain.ErrTransportFailure.
func (t *Transport) Send(ctx context.Context, msg service.Message) error {
	m, err := t.message(msg)
	if err != nil {
		return sendError(service.KindNotFound, domain.ErrTransportFailure.WithDetails("build message: "+err.Error()).WithCause(err))
	}
	client, err := gomail.NewClient(t.cfg.Host, t.opts...)
	if err != nil {
		return sendError(service.KindUnavailable, domain.ErrTransportFailure.WithDetails("create client: "+err.Error()).WithCause(err))
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return sendError(classify(err), domain.ErrTransportFailure.WithDetails(t.cfg.Host+": "+err.Error()).WithCause(err))
	}
	return nil
}

func sendError(kind service.Kind, err error) error {
	return &service.CapabilityError{Op: "send", Kind: kind, Err: err}
}

// classify maps SMTP replies to capability kinds. Rejected credentials
// are permission denied and a rejected recipient is not found. Anything
// else is unavailable.
func classify(err error) service.Kind {
	var se *gomail.SendError
	if errors.As(err, &se) && se.Reason == gomail.ErrSMTPRcptTo {
		return service.KindNotFound
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 530, 534, 535:
			return service.KindPermissionDenied
		case 550, 551, 553:
			return service.KindNotFound
		}
	}
	return service.KindUnavailable
}

func (t *Transport) message(msg service.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if t.cfg.FromName != "" {
		if err := m.FromFormat(t.cfg.FromName, t.cfg.FromAddress); err != nil {
			return nil, err
		}
	} else if err := m.From(t.cfg.FromAddress); err != nil {
		return nil, err
	}
	if err := m.To(msg.To); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	return m, nil
}

var _ service.Transport = (*Transport)(nil)
