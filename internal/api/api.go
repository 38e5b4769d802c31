// Package api is the HTTP/JSON adapter over Engine, for the out-of-scope
// rendering UI to poll, grounded on the teacher's lib/api.service: an
// httprouter.Router of HandlerFunc endpoints and a shared sendJSON helper.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/lanchat/lcpnode/internal/engine"
	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/lcpevents"
)

// DefaultEventTimeout bounds a long-poll /events request with no explicit
// timeout query parameter.
const DefaultEventTimeout = 60 * time.Second

// Service is the suture-compatible HTTP server wrapping Engine.
type Service struct {
	addr   string
	engine *engine.Engine

	events *lcpevents.BufferedSubscription
}

// New builds the API service bound to addr (e.g. "127.0.0.1:8080").
func New(addr string, eng *engine.Engine) *Service {
	sub := eng.Events.Subscribe(lcpevents.AllEvents)
	return &Service{
		addr:   addr,
		engine: eng,
		events: lcpevents.NewBufferedSubscription(sub, 256),
	}
}

func (s *Service) String() string { return "api" }

// Serve implements suture.Service: it runs the HTTP server until ctx is
// cancelled, then shuts it down gracefully.
func (s *Service) Serve(ctx context.Context) error {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/peers", s.getPeers)
	router.HandlerFunc(http.MethodPost, "/peers/discover", s.postDiscover)
	router.HandlerFunc(http.MethodPost, "/messages", s.postMessage)
	router.HandlerFunc(http.MethodPost, "/files", s.postFile)
	router.HandlerFunc(http.MethodGet, "/history", s.getHistory)
	router.HandlerFunc(http.MethodGet, "/events", s.getEvents)

	srv := &http.Server{Addr: s.addr, Handler: router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		bs, _ = json.Marshal(map[string]string{"error": err.Error()})
		http.Error(w, string(bs), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", bs)
}

func sendError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	bs, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Write(bs)
}

func (s *Service) getPeers(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.engine.GetPeers())
}

func (s *Service) postDiscover(w http.ResponseWriter, r *http.Request) {
	s.engine.ForceDiscover()
	w.WriteHeader(http.StatusAccepted)
}

type messageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Service) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseUserID(req.To)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Send(to, req.Text, 0); err != nil {
		sendError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) postFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseUserID(r.FormValue("to"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("data")
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	filename := header.Filename
	if v := r.FormValue("filename"); v != "" {
		filename = v
	}
	if err := s.engine.SendFile(to, data, filename, 0); err != nil {
		sendError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) getHistory(w http.ResponseWriter, r *http.Request) {
	a, err := parseUserID(r.URL.Query().Get("a"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	b, err := parseUserID(r.URL.Query().Get("b"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	conv, err := s.engine.GetConversation(a, b)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	sendJSON(w, conv)
}

func (s *Service) getEvents(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	since, _ := strconv.Atoi(qs.Get("since"))

	timeout := DefaultEventTimeout
	if ms, err := strconv.Atoi(qs.Get("timeout")); err == nil && ms >= 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	evs := s.events.Since(since, []lcpevents.Event{}, timeout)
	sendJSON(w, evs)
}

// parseUserID accepts either a Display-form id or a raw persisted-literal
// id (including "*global*"), for client convenience.
func parseUserID(s string) (identity.UserID, error) {
	if id, err := identity.ParseDisplay(s); err == nil {
		return id, nil
	}
	var id identity.UserID
	if err := id.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil {
		return identity.UserID{}, err
	}
	return id, nil
}
