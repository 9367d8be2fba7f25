package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

// handleCreateRun records a run and enriches it in the background.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	names, err := s.readNames(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.begin() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	run, err := s.store.CreateRun(r.Context(), names)
	if err != nil {
		s.wg.Done()
		zap.L().Error("api: create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, run.ID, names)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     run.ID,
		"status": run.Status,
		"names":  len(names),
	})
}

// execute runs one stored enrichment request to completion. Status writes
// use a context detached from cancellation so a shutdown still records the
// outcome.
func (s *Server) execute(ctx context.Context, runID string, names []string) {
	bg := context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("run_id", runID))

	if err := s.store.UpdateRunStatus(bg, runID, model.RunStatusEnriching); err != nil {
		log.Warn("api: update run status", zap.Error(err))
	}

	rep, stats := s.enricher.Run(ctx, names)
	if ctx.Err() != nil {
		if err := s.store.FailRun(bg, runID, ctx.Err().Error()); err != nil {
			log.Error("api: fail run", zap.Error(err))
		}
		return
	}

	rep.RunID = runID
	if err := s.store.CompleteRun(bg, runID, rep); err != nil {
		log.Error("api: complete run", zap.Error(err))
		return
	}
	log.Info("api: run complete",
		zap.Int("companies", stats.Companies),
		zap.Int("fields_filled", stats.FieldsFilled),
	)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
