package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriptions struct {
	chat    []string
	events  []string
	removed []string
}

func (r *recordingSubscriptions) EnsureChatSubscription(_ context.Context, broadcasterUserID string) error {
	r.chat = append(r.chat, broadcasterUserID)
	return nil
}

func (r *recordingSubscriptions) EnsureEventSubscription(_ context.Context, eventType, broadcasterUserID string) error {
	r.events = append(r.events, eventType+"|"+broadcasterUserID)
	return nil
}

func (r *recordingSubscriptions) RemoveSubscriptions(_ context.Context, broadcasterUserID string) error {
	r.removed = append(r.removed, broadcasterUserID)
	return nil
}

func TestSavePolicySettings_SyncsEventSubscriptions(t *testing.T) {
	f := newTestServer(t)
	subs := &recordingSubscriptions{}
	f.srv.deps.Subscriptions = subs

	body := `{"mode":"leader","eventDeltas":{"channel.follow":25,"channel.chat.message":5}}`
	rec := f.call(f.srv.handleSavePolicySettings, jsonRequest(http.MethodPut, "/api/settings/policy", body))
	require.Equal(t, http.StatusOK, rec.Code)

	// Chat messages are subscribed at login, not from the policy table.
	assert.Equal(t, []string{"channel.follow|12345"}, subs.events)
	assert.Empty(t, subs.chat)
}

func TestSavePolicySettings_NoSubscriptionManager(t *testing.T) {
	f := newTestServer(t)

	body := `{"mode":"leader","eventDeltas":{"channel.follow":25}}`
	rec := f.call(f.srv.handleSavePolicySettings, jsonRequest(http.MethodPut, "/api/settings/policy", body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwitchDisconnect_RemovesSubscriptions(t *testing.T) {
	f := newTestServer(t)
	subs := &recordingSubscriptions{}
	f.srv.deps.Subscriptions = subs

	rec := f.call(f.srv.handleTwitchDisconnect, httptest.NewRequest(http.MethodPost, "/api/twitch/disconnect", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", decodeBody(t, rec)["status"])
	assert.Equal(t, []string{"12345"}, subs.removed)
}

func TestTwitchDisconnect_NotConfigured(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleTwitchDisconnect, httptest.NewRequest(http.MethodPost, "/api/twitch/disconnect", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not configured", decodeBody(t, rec)["status"])
}

func TestOAuthCallback_SyncsSubscriptions(t *testing.T) {
	f := newTestServer(t)
	subs := &recordingSubscriptions{}
	f.srv.deps.Subscriptions = subs
	f.srv.deps.OAuth = &stubOAuthClient{result: &TwitchTokenResult{UserID: "777", Username: "newbie"}}

	loginReq := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	loginRec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(loginRec, loginReq)

	location, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)

	callbackReq := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+location.Query().Get("state"), nil)
	for _, cookie := range loginRec.Result().Cookies() {
		callbackReq.AddCookie(cookie)
	}
	callbackRec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(callbackRec, callbackReq)
	require.Equal(t, http.StatusFound, callbackRec.Code)

	assert.Equal(t, []string{"777"}, subs.chat)
	// A fresh streamer has no policy deltas, so no extra subscriptions yet.
	assert.Empty(t, subs.events)
}
