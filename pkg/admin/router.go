// Package admin serves the operator HTTP surface: session status, manual
// logon/logout/reset, Prometheus metrics and the FIX-over-WebSocket mount.
package admin

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Sessions is the view of a connector's registry the router needs.
type Sessions interface {
	All() []*session.Session
	LookupString(id string) (*session.Session, bool)
}

type RouterParams struct {
	Sessions Sessions
	// Metrics are served on /metrics when set.
	Gatherer prometheus.Gatherer
	// Mounted on /fix when set, normally a connector.Acceptor.
	FIXHandler http.Handler
}

type SessionStatus struct {
	ID                  string `json:"id"`
	State               string `json:"state"`
	LoggedOn            bool   `json:"loggedOn"`
	Enabled             bool   `json:"enabled"`
	Initiator           bool   `json:"initiator"`
	RemoteAddress       string `json:"remoteAddress,omitempty"`
	NextSenderMsgSeqNum uint64 `json:"nextSenderMsgSeqNum"`
	NextTargetMsgSeqNum uint64 `json:"nextTargetMsgSeqNum"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	sessions Sessions
	logger   *logrus.Logger
}

func NewRouter(params *RouterParams, logger *logrus.Logger) http.Handler {
	h := &handlers{sessions: params.Sessions, logger: logger}

	router := mux.NewRouter()
	// session ids contain ':' and '>' so they arrive escaped
	router.UseEncodedPath()
	router.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/logon", h.logon).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/logout", h.logout).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/reset", h.reset).Methods(http.MethodPost)

	if params.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
	if params.FIXHandler != nil {
		router.Handle("/fix", params.FIXHandler)
	}
	return router
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	all := h.sessions.All()
	statuses := make([]SessionStatus, 0, len(all))
	for _, s := range all {
		statuses = append(statuses, status(s))
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, status(s))
}

func (h *handlers) logon(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Logon()
	h.writeJSON(w, http.StatusOK, status(s))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "Logout requested by operator"
	}
	s.Logout(reason)
	h.writeJSON(w, http.StatusOK, status(s))
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		h.logger.Error("session reset failed: ", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, status(s))
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}
	s, ok := h.sessions.LookupString(id)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session " + id})
		return nil, false
	}
	return s, true
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response: ", err)
	}
}

func status(s *session.Session) SessionStatus {
	return SessionStatus{
		ID:                  s.ID().String(),
		State:               s.State().String(),
		LoggedOn:            s.IsLoggedOn(),
		Enabled:             s.IsEnabled(),
		Initiator:           s.Settings().Initiator,
		RemoteAddress:       s.RemoteAddress(),
		NextSenderMsgSeqNum: s.NextSenderMsgSeqNum(),
		NextTargetMsgSeqNum: s.NextTargetMsgSeqNum(),
	}
}
