package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pdptw/internal/integrations/csvfile"
	"pdptw/internal/model"
	"pdptw/internal/opt"
)

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	items, next, err := s.Store.ListRuns(r.Context(), tenant, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}, /v1/runs/{id}/assignments.csv and
// /v1/runs/{id}/events/stream
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		_, tenant := s.withTenant(r)
		run, err := s.Store.GetRun(r.Context(), tenant, id)
		if err != nil {
			writeError(w, r, "Run not found", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case len(parts) == 2 && parts[1] == "assignments.csv":
		s.runAssignmentsCSV(w, r, id)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.runEventStream(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) runAssignmentsCSV(w http.ResponseWriter, r *http.Request, id string) {
	_, tenant := s.withTenant(r)
	run, err := s.Store.GetRun(r.Context(), tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	if run.Status != model.RunSucceeded {
		writeProblem(w, http.StatusConflict, "Run has no solution", "status is "+run.Status, r.URL.Path)
		return
	}
	as := make([]opt.Assignment, 0, len(run.Assignments))
	for _, a := range run.Assignments {
		as = append(as, opt.Assignment(a))
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "assignments-"+id+".csv"))
	_ = csvfile.WriteAssignments(w, as)
}

// runEventStream streams run events as server-sent events until the run
// completes or the client goes away.
func (s *Server) runEventStream(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before reading the run so a completion in between is not lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	_, tenant := s.withTenant(r)
	run, err := s.Store.GetRun(r.Context(), tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}
	heartbeat := func() {
		send(SSEEvent{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
	}
	heartbeat()
	if run.Finished() {
		send(completedEvent(run))
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Type == EventRunCompleted {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}
