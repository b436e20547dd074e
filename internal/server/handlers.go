package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/tabtail/internal/event"
	"github.com/hazyhaar/tabtail/internal/snapshot"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status())
}

// historyFilter builds the shared last/minutes/source query filter.
func historyFilter(r *http.Request) (event.Filter, int) {
	q := r.URL.Query()

	var filters []event.Filter
	if m, err := strconv.Atoi(q.Get("minutes")); err == nil && m > 0 {
		filters = append(filters, event.Since(time.Now(), time.Duration(m)*time.Minute))
	}
	if src := q.Get("source"); src != "" {
		filters = append(filters, event.FromSource(event.Source(src)))
	}

	limit := 0
	if n, err := strconv.Atoi(q.Get("last")); err == nil && n > 0 {
		limit = n
	}
	return event.And(filters...), limit
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	f, limit := historyFilter(r)
	events := s.daemon.Query(event.And(event.Errors(), f), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(events),
		"events": events,
	})
}

func (s *Server) handleErrorsSummary(w http.ResponseWriter, r *http.Request) {
	f, limit := historyFilter(r)
	events := s.daemon.Query(event.And(event.Errors(), f), limit)

	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, summarize(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(events),
		"summary": strings.Join(lines, "\n"),
	})
}

func summarize(e event.Event) string {
	var line string
	switch e.Kind {
	case event.KindConsole:
		line = "[console." + e.Level + "] " + e.Text
	case event.KindException:
		line = "[exception] " + e.Text
	case event.KindNetworkError:
		line = "[network] " + e.Error + " " + e.URL
	case event.KindResponse:
		line = "[http " + strconv.Itoa(e.Status) + "] " + e.URL
	default:
		line = "[" + string(e.Kind) + "] " + e.Text
	}
	if e.Note != "" {
		line += " (" + e.Note + ")"
	}
	return line
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	f, limit := historyFilter(r)
	filters := []event.Filter{event.Kinds(event.KindConsole, event.KindException), f}
	if q := r.URL.Query().Get("q"); q != "" {
		filters = append(filters, event.TextContains(q))
	}

	events := s.daemon.Query(event.And(filters...), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(events),
		"events": events,
	})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	f, limit := historyFilter(r)
	filters := []event.Filter{
		event.Kinds(event.KindRequest, event.KindResponse, event.KindNetworkError),
		f,
	}
	if st := r.URL.Query().Get("status"); st != "" {
		filters = append(filters, event.StatusFilter(st))
	}

	events := s.daemon.Query(event.And(filters...), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(events),
		"events": events,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Snapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleInspect is the snapshot superset: watchlist + refs plus error
// counts, the most recent errors, a fresh screenshot path, and the
// configured extension identity.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Snapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.inspectPayload(r, snap))
}

func (s *Server) inspectPayload(r *http.Request, snap *snapshot.Result) map[string]interface{} {
	recent := s.daemon.Query(event.Errors(), 10)

	out := map[string]interface{}{
		"snapshot":     snap,
		"eventCounts":  event.Counts(s.daemon.Query(nil, 0)),
		"recentErrors": recent,
	}

	if path, err := s.daemon.Screenshot(r.Context(), ""); err == nil {
		out["screenshot"] = path
	} else {
		s.logger.Warn("server: inspect screenshot failed", "error", err)
	}
	if st := s.daemon.Status(); st.ExtensionID != "" {
		out["extensionId"] = st.ExtensionID
	}
	return out
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Inspect bool   `json:"inspect"`
	}
	if err := decodeBody(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("navigate: url required"))
		return
	}

	if err := s.daemon.Navigate(r.Context(), req.URL); err != nil {
		s.fail(w, err)
		return
	}

	if req.Inspect {
		s.respondAfterInspect(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"navigated": req.URL})
}

func (s *Server) handleReloadPage(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Reload(r.Context()); err != nil {
		s.fail(w, err)
		return
	}

	if r.URL.Query().Get("inspect") == "true" {
		s.respondAfterInspect(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reloaded": "ok"})
}

// respondAfterInspect waits for the new document, then responds with
// the full inspect payload.
func (s *Server) respondAfterInspect(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.WaitForBody(r.Context()); err != nil {
		s.logger.Warn("server: wait for body", "error", err)
	}
	snap, err := s.daemon.Snapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.inspectPayload(r, snap))
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Expression string `json:"expression"`
	}
	if err := decodeBody(r, &req); err != nil || req.Expression == "" {
		writeError(w, http.StatusBadRequest, errors.New("eval: expression required"))
		return
	}

	val, err := s.daemon.Eval(r.Context(), req.Expression)
	if err != nil {
		s.fail(w, err)
		return
	}
	// A null/undefined result is a valid value, not an error.
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": val})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref      int    `json:"ref"`
		Selector string `json:"selector"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("click: invalid body"))
		return
	}

	res, err := s.daemon.Click(r.Context(), req.Ref, req.Selector)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clicked": res})
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref      int    `json:"ref"`
		Selector string `json:"selector"`
		Value    string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("fill: invalid body"))
		return
	}

	res, err := s.daemon.Fill(r.Context(), req.Ref, req.Selector, req.Value)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filled": res})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.daemon.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"cleared": "ok"})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	path, err := s.daemon.Screenshot(r.Context(), r.URL.Query().Get("selector"))
	if err != nil {
		s.fail(w, err)
		return
	}

	// An explicit output path moves the capture out of the managed dir
	// (and out of its cleanup policy).
	if out := r.URL.Query().Get("output"); out != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			err = os.WriteFile(out, data, 0o644)
		}
		if err != nil {
			s.fail(w, fmt.Errorf("server: write %s: %w", out, err))
			return
		}
		_ = os.Remove(path)
		path = out
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	list, err := s.daemon.Extensions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"extensions": list})
}

func (s *Server) handleExtensionErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.daemon.ExtensionErrors(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"errors": msgs,
	})
}

func (s *Server) handleReloadExt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	diff, err := s.daemon.ReloadExtension(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	out := map[string]interface{}{
		"id":   id,
		"diff": diff,
	}
	if r.URL.Query().Get("inspect") == "true" {
		if snap, err := s.daemon.Snapshot(r.Context()); err == nil {
			out["snapshot"] = snap
		}
	}
	writeJSON(w, http.StatusOK, out)
}
