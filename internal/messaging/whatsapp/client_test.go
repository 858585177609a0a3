package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
)

func TestClientSendText(t *testing.T) {
	var got sendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/PNID/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.OUT"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Defaults: Credentials{PhoneNumberID: "PNID", AccessToken: "tok"}})
	id, err := client.Send(context.Background(), Credentials{}, "+971501234567", messaging.Text("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "wamid.OUT", id)
	assert.Equal(t, "971501234567", got.To)
	assert.Equal(t, "text", got.Type)
	require.NotNil(t, got.Text)
	assert.Equal(t, "Hello", got.Text.Body)
}

func TestClientUsesCompanyCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/CO/messages" || r.Header.Get("Authorization") != "Bearer co-token" {
			t.Errorf("company credentials not used: %s %s", r.URL.Path, r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Defaults: Credentials{PhoneNumberID: "PNID", AccessToken: "tok"}})
	_, err := client.Send(context.Background(), Credentials{PhoneNumberID: "CO", AccessToken: "co-token"}, "971500000000", messaging.Text("hi"))
	require.NoError(t, err)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","code":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.3"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:    server.URL,
		Defaults:   Credentials{PhoneNumberID: "PNID", AccessToken: "tok"},
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	id, err := client.Send(context.Background(), Credentials{}, "971500000000", messaging.Text("hi"))
	require.NoError(t, err)
	assert.Equal(t, "wamid.3", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:    server.URL,
		Defaults:   Credentials{PhoneNumberID: "PNID", AccessToken: "tok"},
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})
	_, err := client.Send(context.Background(), Credentials{}, "971500000000", messaging.Text("hi"))
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 100, apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{}).Send(context.Background(), Credentials{}, "971500000000", messaging.Text("hi"))
	require.Error(t, err)
}

func TestBuildPayloadButtonsClipped(t *testing.T) {
	msg := messaging.Buttons("Choose",
		messaging.Button{ID: "A", Title: "An extremely long button title"},
		messaging.Button{ID: "B", Title: "B"},
		messaging.Button{ID: "C", Title: "C"},
		messaging.Button{ID: "D", Title: "D"},
	).WithImage("https://cdn.example/tour.jpg")

	p, err := buildPayload("971500000000", msg)
	require.NoError(t, err)
	require.NotNil(t, p.Interactive)
	assert.Equal(t, "button", p.Interactive.Type)
	require.Len(t, p.Interactive.Action.Buttons, MaxButtons)
	title := p.Interactive.Action.Buttons[0].Reply.Title
	assert.LessOrEqual(t, len([]rune(title)), MaxButtonTitle)
	assert.True(t, strings.HasSuffix(title, "…"))
	require.NotNil(t, p.Interactive.Header)
	assert.Equal(t, "image", p.Interactive.Header.Type)
}

func TestBuildPayloadListLimits(t *testing.T) {
	rows := make([]messaging.Row, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, messaging.Row{
			ID:          "PKG_" + string(rune('a'+i)),
			Title:       "A package title that is far too long",
			Description: strings.Repeat("x", 100),
		})
	}
	p, err := buildPayload("971500000000", messaging.List("Packages", "", rows...).WithImage("https://x/y.jpg"))
	require.NoError(t, err)
	ia := p.Interactive
	require.NotNil(t, ia)
	assert.Nil(t, ia.Header)
	assert.Equal(t, "View options", ia.Action.Button)
	require.Len(t, ia.Action.Sections, 1)
	require.Len(t, ia.Action.Sections[0].Rows, MaxListRows)
	for _, r := range ia.Action.Sections[0].Rows {
		assert.LessOrEqual(t, len([]rune(r.Title)), MaxRowTitle)
		assert.LessOrEqual(t, len([]rune(r.Description)), MaxRowDescription)
	}
}

func TestBuildPayloadCTA(t *testing.T) {
	p, err := buildPayload("971500000000", messaging.Link("Pay now", "Pay", "https://pay.example/abc"))
	require.NoError(t, err)
	require.NotNil(t, p.Interactive)
	assert.Equal(t, "cta_url", p.Interactive.Type)
	assert.Equal(t, "cta_url", p.Interactive.Action.Name)
	assert.Equal(t, "https://pay.example/abc", p.Interactive.Action.Parameters.URL)

	_, err = buildPayload("971500000000", messaging.Message{Kind: messaging.KindCTA, Body: "x"})
	require.Error(t, err)
	_, err = buildPayload("", messaging.Text("x"))
	require.Error(t, err)
	_, err = buildPayload("971", messaging.Text("  "))
	require.Error(t, err)
}
