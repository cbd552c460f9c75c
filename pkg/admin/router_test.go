package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fr3shw3b/fix-session-engine/pkg/connector"
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionID = fix.SessionID{BeginString: "FIX.4.4", SenderCompID: "ACCEPTOR", TargetCompID: "INITIATOR"}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func createTestServer(t *testing.T, fixHandler http.Handler) (*httptest.Server, *session.Session) {
	t.Helper()
	logger := createLogger()
	s, err := session.New(session.Params{
		SessionID: testSessionID,
		Settings:  session.NewSettings(),
		Store:     store.NewInMemoryStore(testSessionID, logger),
	}, logger)
	require.NoError(t, err)

	registry := connector.NewRegistry()
	require.NoError(t, registry.Add(s))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.NewSessionCollector(registry)))

	router := NewRouter(&RouterParams{
		Sessions:   registry,
		Gatherer:   reg,
		FIXHandler: fixHandler,
	}, logger)
	return httptest.NewServer(router), s
}

func sessionURL(server *httptest.Server, action string) string {
	u := server.URL + "/sessions/" + url.PathEscape(testSessionID.String())
	if action != "" {
		u += "/" + action
	}
	return u
}

func decodeStatus(t *testing.T, resp *http.Response) SessionStatus {
	t.Helper()
	defer resp.Body.Close()
	var status SessionStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func Test_lists_sessions(t *testing.T) {
	server, _ := createTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []SessionStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, testSessionID.String(), statuses[0].ID)
	assert.Equal(t, "DISCONNECTED", statuses[0].State)
	assert.True(t, statuses[0].Enabled)
	assert.Equal(t, uint64(1), statuses[0].NextSenderMsgSeqNum)
}

func Test_unknown_session_is_not_found(t *testing.T) {
	server, _ := createTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/sessions/" + url.PathEscape("FIX.4.4:X->Y"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_logout_and_logon_toggle_the_session(t *testing.T) {
	server, s := createTestServer(t, nil)
	defer server.Close()

	resp, err := http.Post(sessionURL(server, "logout"), "application/json", nil)
	require.NoError(t, err)
	assert.False(t, decodeStatus(t, resp).Enabled)
	assert.False(t, s.IsEnabled())

	resp, err = http.Post(sessionURL(server, "logon"), "application/json", nil)
	require.NoError(t, err)
	assert.True(t, decodeStatus(t, resp).Enabled)
}

func Test_reset_restarts_sequence_numbers(t *testing.T) {
	server, s := createTestServer(t, nil)
	defer server.Close()
	require.NoError(t, s.SetNextSenderMsgSeqNum(20))

	resp, err := http.Post(sessionURL(server, "reset"), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decodeStatus(t, resp).NextSenderMsgSeqNum)
}

func Test_actions_require_post(t *testing.T) {
	server, _ := createTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(sessionURL(server, "reset"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func Test_metrics_endpoint_reports_sequence_numbers(t *testing.T) {
	server, _ := createTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "fix_session_next_sender_seq_num"))
}

func Test_fix_handler_is_mounted(t *testing.T) {
	called := false
	server, _ := createTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	resp, err := http.Get(server.URL + "/fix")
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
