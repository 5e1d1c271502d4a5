package ginserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/engine"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/domain/shared/money"
	"bazaar/internal/infra/config"
	ginserver "bazaar/internal/infra/http/gin"
	"bazaar/internal/infra/obs"
	"bazaar/internal/infra/security"
	"bazaar/internal/infra/storage/memory"
)

type apiHarness struct {
	router   http.Handler
	verifier *security.TokenVerifier
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewCatalog(
		policies.ListingInfo{ID: "L1", Title: "Road bike", Price: money.Must(10000, "EUR"), SellerID: "bob"},
	)
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	eng, err := engine.New(engine.Deps{
		UoWFactory:  memory.Factory{Store: store},
		Outbox:      store.Outbox(),
		Idempotency: memory.NewIdempotencyStore(time.Hour),
		Watcher:     store,
		Clock:       memory.NewClock(),
		Listings:    catalog,
		Now:         func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Second) },
	})
	require.NoError(t, err)

	verifier, err := security.NewTokenVerifier("test-secret", "bazaar-test")
	require.NoError(t, err)
	router := ginserver.NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Conversations:  ginserver.ConversationHandler{Commands: eng.Commands, Queries: eng.Queries},
		Offers:         ginserver.OfferHandler{Commands: eng.Commands, Queries: eng.Queries},
		Moderation:     ginserver.ModerationHandler{Commands: eng.Commands, Queries: eng.Queries},
		Live:           ginserver.LiveHandler{Queries: eng.Queries},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: verifier}.Handle,
	})
	return &apiHarness{router: router, verifier: verifier}
}

func (h *apiHarness) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := h.verifier.Issue(identity.Principal{UserID: userID, Roles: roles}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *apiHarness) startConversation(t *testing.T, buyer string) dto.Conversation {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/conversations", h.token(t, buyer), map[string]string{
		"listing_id":    "L1",
		"first_message": "Is it still available?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.Conversation](t, rec)
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	h := newAPI(t)
	rec := h.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	h := newAPI(t)
	conv := h.startConversation(t, "alice")
	assert.Equal(t, "bob", conv.CounterpartID)
	assert.Equal(t, 1, conv.MessageCount)

	again := h.startConversation(t, "alice")
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, 1, again.MessageCount)

	bob := h.token(t, "bob")
	rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", bob, map[string]string{
		"text":              "Yes it is",
		"client_message_id": "m-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[dto.Message](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", bob, map[string]string{
		"text":              "Yes it is",
		"client_message_id": "m-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, first.ID, decode[dto.Message](t, rec).ID)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?limit=10", h.token(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[dto.MessageList](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, first.ID, page.Items[0].ID)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, h.token(t, "carol"), nil)
	assert.Contains(t, []int{http.StatusForbidden, http.StatusNotFound}, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", h.token(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, decode[dto.Conversation](t, rec).UnreadCount)
}

func TestBlockedSenderGetsForbidden(t *testing.T) {
	h := newAPI(t)
	conv := h.startConversation(t, "alice")

	rec := h.do(t, http.MethodPut, "/api/v1/blocks/alice", h.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", h.token(t, "alice"), map[string]string{"text": "hello?"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"blocked"`)

	rec = h.do(t, http.MethodGet, "/api/v1/blocks", h.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.BlockList](t, rec).Items, 1)

	rec = h.do(t, http.MethodDelete, "/api/v1/blocks/alice", h.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", h.token(t, "alice"), map[string]string{"text": "hello?"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOfferNegotiation(t *testing.T) {
	h := newAPI(t)
	conv := h.startConversation(t, "alice")
	alice, bob := h.token(t, "alice"), h.token(t, "bob")

	rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/offers", alice, map[string]any{
		"listing_id": "L1", "amount": 8000, "currency": "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[dto.Offer](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/offers/"+created.ID+"/accept", alice, nil)
	assert.Contains(t, []int{http.StatusForbidden, http.StatusConflict}, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/offers/"+created.ID+"/counter", bob, map[string]any{"amount": 9000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	countered := decode[dto.CounterResult](t, rec)

	rec = h.do(t, http.MethodPost, "/api/v1/offers/"+countered.Counter.ID+"/accept", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ACCEPTED", decode[dto.Offer](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/api/v1/offers/"+countered.Counter.ID+"/reject", bob, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/offers", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.OfferList](t, rec).Items, 2)
}

func TestReportsNeedModerator(t *testing.T) {
	h := newAPI(t)
	conv := h.startConversation(t, "alice")

	rec := h.do(t, http.MethodPost, "/api/v1/reports", h.token(t, "alice"), map[string]string{
		"conversation_id": conv.ID,
		"category":        "scam",
		"description":     "asks for a wire transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	filed := decode[dto.Report](t, rec)
	assert.Equal(t, "PENDING", filed.Status)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/reports", h.token(t, "alice"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	mod := h.token(t, "mod", identity.RoleModerator)
	rec = h.do(t, http.MethodGet, "/api/v1/admin/reports?status=pending", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ReportList](t, rec).Items, 1)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/reports/"+filed.ID+"/resolve", mod, map[string]string{"action": "warning"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RESOLVED", decode[dto.Report](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/reports/"+filed.ID+"/dismiss", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RESOLVED", decode[dto.Report](t, rec).Status)
}

func TestMessagesStreamOverWebsocket(t *testing.T) {
	h := newAPI(t)
	conv := h.startConversation(t, "alice")
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/conversations/" + conv.ID + "/messages?access_token=" + h.token(t, "bob")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap struct {
		Type string          `json:"type"`
		Data dto.MessageList `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "messages", snap.Type)
	require.Len(t, snap.Data.Items, 1)

	rec := h.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", h.token(t, "bob"), map[string]string{"text": "Yes"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Len(t, snap.Data.Items, 2)
}

func TestWebsocketOriginFollowsCORSOrigins(t *testing.T) {
	check := ginserver.CheckOrigin([]string{"https://app.example.com"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws/conversations", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("https://app.example.com")))
	assert.True(t, check(req("")), "non-browser clients send no origin")
	assert.False(t, check(req("https://evil.example.net")))

	assert.True(t, ginserver.CheckOrigin([]string{"*"})(req("https://anything.test")))
}
