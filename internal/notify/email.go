package notify

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/report"
)

const (
	maxListedFailures = 3
	emailTimeLayout   = "2006-01-02 15:04:05 MST"
	base64LineLength  = 76
	passColor         = "#28a745"
	failColor         = "#dc3545"
)

var errNoRecipients = errors.New("no email recipients configured")

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends HTML mail over SMTP with PLAIN auth.
type Email struct {
	cfg  config.EmailConfig
	send SendFunc
}

// NewEmail creates an email channel.
func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{cfg: cfg, send: smtp.SendMail}
}

// Name implements Channel.
func (e *Email) Name() string {
	return "email"
}

// Deliver implements Channel. net/smtp has no context support, so ctx is only
// checked before sending.
func (e *Email) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	recipients := e.cfg.Recipients()
	if len(recipients) == 0 {
		return errNoRecipients
	}

	raw, err := e.compose(msg)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)

	if err := e.send(e.cfg.Addr(), auth, e.cfg.Sender(), recipients, raw); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}

	return nil
}

// Subject returns the mail subject for msg.
func Subject(msg Message) string {
	if msg.IsFailure() {
		return FailureTitle
	}

	if msg.Passed() {
		return fmt.Sprintf("✅ API Tests PASSED - %s Success Rate", rateLabel(msg.Record.SuccessRate))
	}

	return fmt.Sprintf("❌ API Tests FAILED - %s Success Rate", rateLabel(msg.Record.SuccessRate))
}

type attachment struct {
	name string
	data []byte
}

// compose renders the full RFC 5322 message. Bcc recipients are left out of
// the headers.
func (e *Email) compose(msg Message) ([]byte, error) {
	var attachments []attachment

	if !msg.IsFailure() && msg.ReportPath != "" {
		data, err := os.ReadFile(msg.ReportPath)
		if err == nil {
			attachments = append(attachments, attachment{name: filepath.Base(msg.ReportPath), data: data})
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading report attachment: %w", err)
		}
	}

	html, err := renderBody(msg, len(attachments) > 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	writeHeader(&buf, "From", e.cfg.Sender())
	writeHeader(&buf, "To", strings.Join(e.cfg.To, ", "))

	if len(e.cfg.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(e.cfg.CC, ", "))
	}

	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", Subject(msg)))
	writeHeader(&buf, "Date", msg.Time.Format(time.RFC1123Z))
	writeHeader(&buf, "MIME-Version", "1.0")

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating html part: %w", err)
	}

	if _, err := htmlPart.Write(wrapBase64(html)); err != nil {
		return nil, fmt.Errorf("writing html part: %w", err)
	}

	for _, a := range attachments {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType(a.name) + "; name=\"" + a.name + "\""},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {"attachment; filename=\"" + a.name + "\""},
		})
		if err != nil {
			return nil, fmt.Errorf("creating attachment part: %w", err)
		}

		if _, err := part.Write(wrapBase64(a.data)); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", a.name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return buf.Bytes(), nil
}

type resultView struct {
	StatusColor      template.CSS
	Timestamp        string
	Duration         string
	Environment      string
	SuccessRate      string
	TotalAssertions  int
	FailedAssertions int
	TotalRequests    int
	Trend            string
	Failures         []report.Failure
	FailureCount     int
	MoreFailures     int
	HasAttachment    bool
}

type failureView struct {
	Error       string
	Timestamp   string
	Environment string
}

func renderBody(msg Message, hasAttachment bool) ([]byte, error) {
	var buf bytes.Buffer

	if msg.IsFailure() {
		view := failureView{
			Error:       msg.ErrorText(),
			Timestamp:   msg.Time.Format(emailTimeLayout),
			Environment: msg.Environment,
		}

		if err := templates.ExecuteTemplate(&buf, "failure.html", view); err != nil {
			return nil, fmt.Errorf("rendering failure email: %w", err)
		}

		return buf.Bytes(), nil
	}

	rec := msg.Record
	view := resultView{
		StatusColor:      passColor,
		Timestamp:        rec.Timestamp.Format(emailTimeLayout),
		Duration:         seconds(rec.Duration),
		Environment:      msg.Environment,
		SuccessRate:      rateLabel(rec.SuccessRate),
		TotalAssertions:  rec.Stats.Assertions.Total,
		FailedAssertions: rec.Stats.Assertions.Failed,
		TotalRequests:    rec.Stats.Requests.Total,
		FailureCount:     len(rec.Failures),
		HasAttachment:    hasAttachment,
	}

	if !rec.Passed() {
		view.StatusColor = failColor
	}

	if msg.Analysis != nil && len(msg.Analysis.Summary) > 0 {
		view.Trend = strings.Join(msg.Analysis.Summary, " • ")
	}

	view.Failures = rec.Failures
	if len(rec.Failures) > maxListedFailures {
		view.Failures = rec.Failures[:maxListedFailures]
		view.MoreFailures = len(rec.Failures) - maxListedFailures
	}

	if err := templates.ExecuteTemplate(&buf, "result.html", view); err != nil {
		return nil, fmt.Errorf("rendering result email: %w", err)
	}

	return buf.Bytes(), nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// wrapBase64 encodes data with CRLF line breaks as required for mail bodies.
func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)

	var out bytes.Buffer
	for len(encoded) > base64LineLength {
		out.WriteString(encoded[:base64LineLength])
		out.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}

	out.WriteString(encoded)
	out.WriteString("\r\n")

	return out.Bytes()
}
