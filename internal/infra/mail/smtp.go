package mail

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/infra/logger"
)

const defaultSendTimeout = 10 * time.Second

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPDispatcher renders the embedded templates and submits them over SMTP.
// Every send is bounded by the caller's context and the configured timeout.
type SMTPDispatcher struct {
	from    string
	timeout time.Duration
	send    sendFunc
	now     func() time.Time
	logger  *zap.Logger
}

func NewSMTPDispatcher(cfg config.MailSettings, logger *zap.Logger) (*SMTPDispatcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(dialWithDeadline),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	} else {
		opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthNoAuth))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPDispatcher{
		from:    cfg.From,
		timeout: timeout,
		send: func(ctx context.Context, msg *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		now:    time.Now,
		logger: logger,
	}, nil
}

// dialWithDeadline applies the dial context deadline to the whole
// connection, so a server that never greets cannot stall the session.
func dialWithDeadline(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *SMTPDispatcher) Send(ctx context.Context, to, template string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(template, data)
	if err != nil {
		return err
	}

	msg, err := d.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	d.logger.Info("email sent", logger.Email(to), zap.String("template", template))
	return nil
}

func (d *SMTPDispatcher) buildMessage(to, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(d.now())
	msg.SetBodyString(gomail.TypeTextHTML, body)
	return msg, nil
}

var _ port.MailDispatcher = (*SMTPDispatcher)(nil)
