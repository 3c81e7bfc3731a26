package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func sampleRecord(failed int) *report.Record {
	rec := &report.Record{
		Timestamp:   runTime,
		Duration:    12340,
		Stats:       report.Stats{Iterations: 1, Requests: report.Counter{Total: 8}, Assertions: report.Counter{Total: 20, Failed: failed}},
		SuccessRate: report.NewSuccessRate(20, failed),
	}

	for i := 0; i < failed; i++ {
		rec.Failures = append(rec.Failures, report.Failure{Source: "GET /users " + string(rune('A'+i)), Error: "expected 200"})
	}

	return rec
}

type fakeChannel struct {
	name  string
	err   error
	calls atomic.Int32
	wait  chan struct{}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(ctx context.Context, _ Message) error {
	f.calls.Add(1)

	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return f.err
}

func TestDispatcher_IndependentChannels(t *testing.T) {
	t.Parallel()

	errDown := errors.New("webhook down")
	ok := &fakeChannel{name: "ok"}
	broken := &fakeChannel{name: "broken", err: errDown}
	other := &fakeChannel{name: "other"}

	d := NewDispatcher(logrus.New(), ok, broken, other)
	assert.Equal(t, []string{"ok", "broken", "other"}, d.Channels())

	failed := d.Dispatch(context.Background(), ResultMessage(sampleRecord(0), nil, "default", ""))
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].Channel)
	assert.ErrorIs(t, failed[0], errDown)

	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, int32(1), other.calls.Load())
}

func TestDispatcher_Concurrent(t *testing.T) {
	t.Parallel()

	// Both channels block until released; sequential delivery would deadlock.
	release := make(chan struct{})
	a := &fakeChannel{name: "a", wait: release}
	b := &fakeChannel{name: "b", wait: release}

	done := make(chan []*DeliveryError)
	go func() {
		done <- NewDispatcher(logrus.New(), a, b).Dispatch(context.Background(), FailureMessage(errors.New("x"), runTime, ""))
	}()

	require.Eventually(t, func() bool {
		return a.calls.Load() == 1 && b.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	assert.Empty(t, <-done)
}

func TestDispatcher_NoChannels(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewDispatcher(logrus.New()).Dispatch(context.Background(), Message{}))
}

type captured struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func webhookServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()

	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	t.Cleanup(srv.Close)

	return srv, c
}

func TestSlack_ResultPayload(t *testing.T) {
	t.Parallel()

	srv, got := webhookServer(t, http.StatusOK)
	analysis := &trend.Analysis{Summary: []string{trend.SignalImproved, trend.SignalAllPassed}}

	require.NoError(t, NewSlack(srv.URL, "#qa").Deliver(context.Background(), ResultMessage(sampleRecord(0), analysis, "staging", "")))
	require.Len(t, got.bodies, 1)
	assert.Equal(t, "application/json", got.headers[0].Get("Content-Type"))

	var payload slackPayload
	require.NoError(t, json.Unmarshal(got.bodies[0], &payload))
	assert.Equal(t, "#qa", payload.Channel)
	require.Len(t, payload.Attachments, 1)

	att := payload.Attachments[0]
	assert.Equal(t, "good", att.Color)
	assert.Equal(t, "✅ API Test Results - 100.00% Success Rate", att.Title)
	assert.Equal(t, runTime.Unix(), att.TS)
	assert.Equal(t, "success rate improved • all checks passed", att.Text)
	require.Len(t, att.Fields, 4)
	assert.Equal(t, "12.34s", att.Fields[2].Value)
}

func TestSlack_FailurePayload(t *testing.T) {
	t.Parallel()

	srv, got := webhookServer(t, http.StatusOK)
	require.NoError(t, NewSlack(srv.URL, "").Deliver(context.Background(), FailureMessage(errors.New("newman not found"), runTime, "")))

	var payload slackPayload
	require.NoError(t, json.Unmarshal(got.bodies[0], &payload))
	assert.Equal(t, "danger", payload.Attachments[0].Color)
	assert.Equal(t, FailureTitle, payload.Attachments[0].Title)
	assert.Equal(t, "newman not found", payload.Attachments[0].Text)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv, _ := webhookServer(t, http.StatusBadRequest)

	err := NewTeams(srv.URL).Deliver(context.Background(), ResultMessage(sampleRecord(1), nil, "", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid_payload")
}

func TestTeams_Card(t *testing.T) {
	t.Parallel()

	srv, got := webhookServer(t, http.StatusOK)
	require.NoError(t, NewTeams(srv.URL).Deliver(context.Background(), ResultMessage(sampleRecord(2), nil, "production", "")))

	var card teamsCard
	require.NoError(t, json.Unmarshal(got.bodies[0], &card))
	assert.Equal(t, "MessageCard", card.Type)
	assert.Equal(t, teamsFailureColor, card.ThemeColor)
	assert.Equal(t, "API Test Results - 90.00% Success Rate", card.Summary)
	require.Len(t, card.Sections, 1)
	assert.Equal(t, "Executed on 2024-05-01 09:30:00 UTC", card.Sections[0].ActivitySubtitle)
	assert.Contains(t, card.Sections[0].Facts, teamsFact{Name: "Failed Assertions", Value: "2"})
	assert.Contains(t, card.Sections[0].Facts, teamsFact{Name: "Environment", Value: "production"})
}

func TestSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "✅ API Tests PASSED - 100.00% Success Rate", Subject(ResultMessage(sampleRecord(0), nil, "", "")))
	assert.Equal(t, "❌ API Tests FAILED - 85.00% Success Rate", Subject(ResultMessage(sampleRecord(3), nil, "", "")))
	assert.Equal(t, FailureTitle, Subject(FailureMessage(errors.New("boom"), runTime, "")))

	empty := sampleRecord(0)
	empty.Stats.Assertions = report.Counter{}
	empty.SuccessRate = report.NewSuccessRate(0, 0)
	assert.Equal(t, "✅ API Tests PASSED - no assertions executed Success Rate", Subject(ResultMessage(empty, nil, "", "")))
}

type sentMail struct {
	addr string
	from string
	to   []string
	raw  []byte
}

func testEmail(t *testing.T) (*Email, *sentMail) {
	t.Helper()

	sent := &sentMail{}
	e := NewEmail(config.EmailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "bot@example.com",
		Password: "secret",
		To:       []string{"team@example.com"},
		CC:       []string{"lead@example.com"},
		BCC:      []string{"audit@example.com"},
	})
	e.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent.addr, sent.from, sent.to, sent.raw = addr, from, to, msg
		return nil
	}

	return e, sent
}

// parts decodes the multipart body of a composed message.
func parts(t *testing.T, raw []byte) (*mail.Message, map[string]string) {
	t.Helper()

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	out := make(map[string]string)
	mr := multipart.NewReader(msg.Body, params["boundary"])

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		// multipart.Reader does not decode base64; do it here.
		data, err := io.ReadAll(p)
		require.NoError(t, err)

		decoded, err := decodeBase64Lines(string(data))
		require.NoError(t, err)

		key := p.FileName()
		if key == "" {
			key = "body"
		}
		out[key] = decoded
	}

	return msg, out
}

func TestEmail_ResultWithAttachment(t *testing.T) {
	t.Parallel()

	reportPath := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(reportPath, []byte("<html>newman</html>"), 0o600))

	e, sent := testEmail(t)
	analysis := &trend.Analysis{Summary: []string{trend.SignalDeclined}}

	require.NoError(t, e.Deliver(context.Background(), ResultMessage(sampleRecord(5), analysis, "staging", reportPath)))

	assert.Equal(t, "smtp.example.com:587", sent.addr)
	assert.Equal(t, "bot@example.com", sent.from)
	assert.Equal(t, []string{"team@example.com", "lead@example.com", "audit@example.com"}, sent.to)

	msg, body := parts(t, sent.raw)
	assert.Equal(t, "team@example.com", msg.Header.Get("To"))
	assert.Equal(t, "lead@example.com", msg.Header.Get("Cc"))
	assert.Empty(t, msg.Header.Get("Bcc"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "❌ API Tests FAILED - 75.00% Success Rate", subject)

	html := body["body"]
	assert.Contains(t, html, "75.00%")
	assert.Contains(t, html, "Failures (5)")
	assert.Contains(t, html, "GET /users A")
	assert.Contains(t, html, "GET /users C")
	assert.NotContains(t, html, "GET /users D")
	assert.Contains(t, html, "... and 2 more failures")
	assert.Contains(t, html, "success rate declined")
	assert.Contains(t, html, "#dc3545")
	assert.Contains(t, html, "attached")

	assert.Equal(t, "<html>newman</html>", body["report.html"])
}

func TestEmail_MissingReportIsNotAttached(t *testing.T) {
	t.Parallel()

	e, sent := testEmail(t)
	require.NoError(t, e.Deliver(context.Background(), ResultMessage(sampleRecord(0), nil, "", "/nonexistent/report.html")))

	_, body := parts(t, sent.raw)
	assert.Len(t, body, 1)
	assert.NotContains(t, body["body"], "attached")
	assert.NotContains(t, body["body"], "Failures")
}

func TestEmail_FailureMessageEscapesError(t *testing.T) {
	t.Parallel()

	e, sent := testEmail(t)
	require.NoError(t, e.Deliver(context.Background(), FailureMessage(errors.New("<script>alert(1)</script>"), runTime, "production")))

	_, body := parts(t, sent.raw)
	assert.Contains(t, body["body"], "Newman Test Suite Failed")
	assert.Contains(t, body["body"], "&lt;script&gt;")
	assert.NotContains(t, body["body"], "<script>")
}

func TestEmail_SendError(t *testing.T) {
	t.Parallel()

	errRefused := errors.New("535 authentication failed")
	e, _ := testEmail(t)
	e.send = func(string, smtp.Auth, string, []string, []byte) error { return errRefused }

	err := e.Deliver(context.Background(), ResultMessage(sampleRecord(0), nil, "", ""))
	assert.ErrorIs(t, err, errRefused)
}

func TestChannelsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	assert.Empty(t, ChannelsFromConfig(cfg))

	cfg.Notifications.Slack.WebhookURL = "https://hooks.slack.test"
	cfg.Notifications.Teams.WebhookURL = "https://teams.test"
	cfg.Email = config.EmailConfig{Username: "u", Password: "p", To: []string{"a@example.com"}}

	names := make([]string, 0, 3)
	for _, ch := range ChannelsFromConfig(cfg) {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{"slack", "teams", "email"}, names)
}

func decodeBase64Lines(s string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(s))
	if err != nil {
		return "", err
	}

	return string(data), nil
}
