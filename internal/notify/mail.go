package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	gomail "gopkg.in/gomail.v2"

	"vidshare/internal/logging"
	"vidshare/internal/models"
	"vidshare/pkg/utils"
)

type MailConfig struct {
	Host string
	Port int
	From string
	Pass string
	To   string
}

// Enabled reports whether enough is configured to send mail.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && c.To != ""
}

// Mailer sends a short message for every catalog event. Delivery runs in the
// background; Close waits for pending sends.
type Mailer struct {
	cfg  MailConfig
	send func(*gomail.Message) error
	log  logging.Logger
	wg   sync.WaitGroup
}

func NewMailer(cfg MailConfig, log logging.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Pass)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return &Mailer{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
		log:  log,
	}
}

func (m *Mailer) Notify(ctx context.Context, ev models.Event) {
	if ev.Payload == nil {
		return
	}
	msg := m.message(ev)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.send(msg); err != nil {
			m.log.Warn(ctx, "send notification email", "type", ev.Type, "filename", ev.Payload.Filename, "err", err)
		}
	}()
}

// Close blocks until in-flight messages are handed to the server.
func (m *Mailer) Close() {
	m.wg.Wait()
}

func (m *Mailer) message(ev models.Event) *gomail.Message {
	f := ev.Payload
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)

	switch ev.Type {
	case models.EventFileDeleted:
		msg.SetHeader("Subject", fmt.Sprintf("Video deleted: %s", f.Filename))
		msg.SetBody("text/plain", fmt.Sprintf("%s was removed from the library.\n", f.Filename))
	default:
		name := f.OriginalName
		if name == "" {
			name = f.Filename
		}
		msg.SetHeader("Subject", fmt.Sprintf("New video: %s", name))
		msg.SetBody("text/plain", fmt.Sprintf(
			"%s was uploaded (%s).\nStored as %s\nWatch: %s\n",
			name, utils.FormatBytes(f.Size), f.Filename, models.VideoURL(f.Filename)))
	}
	return msg
}
