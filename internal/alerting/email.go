package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailOptions configure the SMTP notifier.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends an HTML table of proposals over SMTP.
type EmailNotifier struct {
	opts   EmailOptions
	send   SendMailFunc
	logger zerolog.Logger
}

// NewEmailNotifier builds an SMTP notifier. A nil send uses smtp.SendMail.
func NewEmailNotifier(opts EmailOptions, send SendMailFunc, logger zerolog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &EmailNotifier{
		opts:   opts,
		send:   send,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify renders and sends one message to every recipient.
func (n *EmailNotifier) Notify(ctx context.Context, d Dispatch) error {
	if n.opts.Host == "" || n.opts.Username == "" || n.opts.Password == "" || len(n.opts.To) == 0 {
		return errors.New("email notifier not configured: host, username, password and recipient are required")
	}
	for _, to := range n.opts.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid email address: %s", to)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := renderHTML(d)
	if err != nil {
		return fmt.Errorf("render email body: %w", err)
	}
	msg := buildMessage(n.opts.From, n.opts.To, Subject(d), html)

	auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	if err := n.send(addr, auth, n.opts.From, n.opts.To, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().
		Int("alerts", len(d.Proposals)).
		Strs("to", n.opts.To).
		Msg("alert sent (email)")
	return nil
}

func buildMessage(from string, to []string, subject, html string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return b.Bytes()
}

type emailRow struct {
	Keyword  string
	Previous string
	Current  string
	Movement string
	Color    string
	Kind     string
}

var emailTemplate = template.Must(template.New("alert").Parse(`<html><body>
<h2>Shopping rank change alert</h2>
{{if .CheckedAt}}<p>Checked {{.CheckedAt}}</p>{{end}}
<table style="width:100%;border-collapse:collapse;font-family:sans-serif">
<thead><tr style="background:#1B2A4A;color:#fff">
<th style="padding:10px;text-align:left">Keyword</th>
<th style="padding:10px">Previous</th>
<th style="padding:10px">Current</th>
<th style="padding:10px">Change</th>
<th style="padding:10px;text-align:left">Type</th>
</tr></thead>
<tbody>
{{range .Rows}}<tr>
<td style="padding:10px;border-bottom:1px solid #e0e0e0">{{.Keyword}}</td>
<td style="padding:10px;border-bottom:1px solid #e0e0e0;text-align:center">{{.Previous}}</td>
<td style="padding:10px;border-bottom:1px solid #e0e0e0;text-align:center;font-weight:bold">{{.Current}}</td>
<td style="padding:10px;border-bottom:1px solid #e0e0e0;text-align:center;color:{{.Color}}">{{.Movement}}</td>
<td style="padding:10px;border-bottom:1px solid #e0e0e0">{{.Kind}}</td>
</tr>
{{end}}</tbody>
</table>
{{if .Note}}<p>{{.Note}}</p>{{end}}
</body></html>`))

func renderHTML(d Dispatch) (string, error) {
	rows := make([]emailRow, 0, len(d.Proposals))
	for _, p := range d.Proposals {
		color := "#95a5a6"
		switch {
		case p.Kind == KindLost || p.Delta > 0:
			color = "#e74c3c"
		case p.Kind == KindNewEntry || p.Delta < 0:
			color = "#27ae60"
		}
		rows = append(rows, emailRow{
			Keyword:  p.Keyword,
			Previous: p.Previous.String(),
			Current:  p.Current.String(),
			Movement: Movement(p),
			Color:    color,
			Kind:     p.Kind.Label(),
		})
	}

	data := struct {
		CheckedAt string
		Rows      []emailRow
		Note      string
	}{Rows: rows, Note: d.Note}
	if !d.CheckedAt.IsZero() {
		data.CheckedAt = d.CheckedAt.Format("2006-01-02 15:04 MST")
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var _ Notifier = (*EmailNotifier)(nil)
