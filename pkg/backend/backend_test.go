package backend

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/chat"
	"github.com/go-go-golems/helpdesk/pkg/gateway"
	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
	"github.com/go-go-golems/helpdesk/pkg/seed"
)

func newTestServer(t *testing.T, responder Responder) (*httptest.Server, *gateway.Client, []chat.Conversation) {
	t.Helper()
	d, err := seed.Default()
	require.NoError(t, err)
	if responder == nil {
		responder = NewFAQResponder(d.Conversations, "")
	}
	srv := NewServer(":0", NewHandler(responder, chatstore.NewInMemorySessionStore(0), d.Conversations), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := gateway.NewClient(gateway.Settings{BaseURL: ts.URL + APIPrefix, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return ts, client, d.Conversations
}

func TestFAQResponder(t *testing.T) {
	d, err := seed.Default()
	require.NoError(t, err)
	r := NewFAQResponder(d.Conversations, "")
	require.Equal(t, 2, r.Len())

	tests := []struct {
		name     string
		text     string
		contains string
	}{
		{name: "vacation", text: "How many vacation days do I have?", contains: "15 days of paid time off"},
		{name: "review", text: "Any tips for the performance review", contains: "Gather examples"},
		{name: "unknown", text: "The coffee machine is broken", contains: DefaultFallbackReply},
		{name: "only stop words", text: "how can you help?", contains: DefaultFallbackReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := r.Reply(context.Background(), tt.text)
			require.NoError(t, err)
			require.Contains(t, reply, tt.contains)
		})
	}
}

func TestAPI_ChatRoundTrip(t *testing.T) {
	_, client, _ := newTestServer(t, nil)

	reply, err := client.Send(context.Background(), "What is the vacation policy?")
	require.NoError(t, err)
	require.Contains(t, reply, "15 days")
}

func TestAPI_ChatResponderFailure(t *testing.T) {
	_, client, _ := newTestServer(t, ResponderFunc(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("model offline")
	}))

	_, err := client.Send(context.Background(), "hello")
	var f *gateway.Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, gateway.FailureServer, f.Kind)
	require.Equal(t, http.StatusInternalServerError, f.Status)
	require.Equal(t, "Failed to generate a reply", f.Error())
}

func TestAPI_ChatValidation(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "blank message", method: http.MethodPost, body: `{"message":"   "}`, status: http.StatusBadRequest},
		{name: "not json", method: http.MethodPost, body: `hello`, status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+"/api/chat", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			require.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestAPI_SaveThenHistory(t *testing.T) {
	_, client, seedConvs := newTestServer(t, nil)
	ctx := context.Background()

	history, err := client.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, len(seedConvs))
	require.Equal(t, seedConvs[0].ID, history[0].ID)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := client.SaveSession(ctx, []chat.Message{
		chat.NewUserMessage("Where is the onboarding checklist?", at),
		chat.NewAssistantMessage("In the HR portal.", at),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	history, err = client.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, len(seedConvs)+1)
	require.Equal(t, chat.ConversationID(id), history[0].ID)
	require.Equal(t, "Where is the onboarding checklist?", history[0].Title)
	require.Len(t, history[0].Messages, 2)

	_, err = client.SaveSession(ctx, nil)
	var f *gateway.Failure
	require.ErrorAs(t, err, &f)
	require.Equal(t, http.StatusBadRequest, f.Status)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sessions := chatstore.NewInMemorySessionStore(0)
	srv := NewServer(ln.Addr().String(), NewHandler(NewFAQResponder(nil, ""), sessions, nil), sessions)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAPI_SaveIsIdempotentPerKey(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	post := func(key string) saveResponse {
		t.Helper()
		body := `{"messages":[{"text":"hi","sender":"user","timestamp":"2025-03-01T10:00:00Z"}]}`
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat/save", strings.NewReader(body))
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Less(t, resp.StatusCode, 300)
		var out saveResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := post("k-1")
	require.Equal(t, first.ID, post("k-1").ID)
	require.NotEqual(t, first.ID, post("k-2").ID)
	require.NotEqual(t, post("").ID, post("").ID)
}

type slowSessionStore struct {
	chatstore.SessionStore
	delay time.Duration
	saves atomic.Int32
}

func (s *slowSessionStore) SaveSession(ctx context.Context, messages []chat.Message) (chatstore.SessionRecord, error) {
	s.saves.Add(1)
	time.Sleep(s.delay)
	return s.SessionStore.SaveSession(ctx, messages)
}

func TestAPI_ConcurrentSavesWithSameKeyStoreOnce(t *testing.T) {
	sessions := &slowSessionStore{SessionStore: chatstore.NewInMemorySessionStore(0), delay: 20 * time.Millisecond}
	srv := NewServer(":0", NewHandler(NewFAQResponder(nil, ""), sessions, nil), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	const n = 5
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := `{"messages":[{"text":"hi","sender":"user","timestamp":"2025-03-01T10:00:00Z"}]}`
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat/save", strings.NewReader(body))
			if err != nil {
				ids <- ""
				return
			}
			req.Header.Set("Idempotency-Key", "same")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				ids <- ""
				return
			}
			defer func() { _ = resp.Body.Close() }()
			var out saveResponse
			_ = json.NewDecoder(resp.Body).Decode(&out)
			ids <- out.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		require.NotEmpty(t, id)
		if first == "" {
			first = id
		}
		require.Equal(t, first, id)
	}
	require.Equal(t, int32(1), sessions.saves.Load())

	recs, err := sessions.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestAPI_FailedSaveReleasesKey(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	post := func(body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat/save", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Idempotency-Key", "retry")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusBadRequest, post(`{"messages":[]}`).StatusCode)
	require.Equal(t, http.StatusCreated, post(`{"messages":[{"text":"hi","sender":"user"}]}`).StatusCode)
	require.Equal(t, http.StatusOK, post(`{"messages":[{"text":"hi","sender":"user"}]}`).StatusCode)
}

func TestIdempotencyCache_Evicts(t *testing.T) {
	ctx := context.Background()
	c := newIdempotencyCache()
	for i := 0; i <= maxIdempotencyKeys; i++ {
		key := strings.Repeat("k", i+1)
		_, owner, err := c.acquire(ctx, key)
		require.NoError(t, err)
		require.True(t, owner)
		c.release(key, "id")
	}

	_, owner, err := c.acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, owner, "oldest key should have been evicted")

	id, owner, err := c.acquire(ctx, strings.Repeat("k", maxIdempotencyKeys+1))
	require.NoError(t, err)
	require.False(t, owner)
	require.Equal(t, "id", id)
}

func TestIdempotencyCache_WaiterGivesUpWithContext(t *testing.T) {
	c := newIdempotencyCache()
	_, owner, err := c.acquire(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, owner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = c.acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
