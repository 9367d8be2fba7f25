package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/ingest"
	"github.com/sells-group/company-intel/internal/normalize"
	"github.com/sells-group/company-intel/internal/report"
)

// enrichRequest is the JSON body accepted by the enrich endpoints.
type enrichRequest struct {
	Names []string `json:"names"`
}

// handleEnrich runs the pipeline and returns the report. The encoding is
// chosen by the format query parameter (json, yaml or xlsx; default json).
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	format := report.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := report.ParseFormat(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = parsed
	}
	s.enrichAndWrite(w, r, format)
}

// handleReport runs the pipeline and returns the spreadsheet.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.enrichAndWrite(w, r, report.FormatXLSX)
}

func (s *Server) enrichAndWrite(w http.ResponseWriter, r *http.Request, format report.Format) {
	names, err := s.readNames(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, stats := s.enricher.Run(r.Context(), names)
	zap.L().Info("api: enrichment complete",
		zap.String("run_id", stats.RunID),
		zap.Int("companies", stats.Companies),
	)

	var buf bytes.Buffer
	if err := report.Encode(&buf, rep, format); err != nil {
		zap.L().Error("api: encode report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode report")
		return
	}

	switch format {
	case report.FormatXLSX:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.DefaultFilename))
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Warn("api: write report", zap.Error(err))
	}
}

// readNames extracts company names from a JSON body, a plain-text body (one
// name per line) or a multipart upload in field "file". Uploads may name the
// column with the "column" form field.
func (s *Server) readNames(w http.ResponseWriter, r *http.Request) ([]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	var names []string
	switch {
	case mediaType == "application/json":
		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, eris.Wrap(err, "invalid request body")
		}
		names = normalize.Dedupe(req.Names)

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			return nil, eris.Wrap(err, "invalid upload")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, eris.Wrap(err, "file is required")
		}
		defer file.Close()
		names, err = ingest.Read(r.Context(), file, ingest.Options{
			Format: ingest.DetectFormat(header.Filename),
			Column: r.FormValue("column"),
		})
		if err != nil {
			return nil, err
		}

	case strings.HasPrefix(mediaType, "text/"):
		names, err = ingest.Read(r.Context(), r.Body, ingest.Options{Format: ingest.FormatText})
		if err != nil {
			return nil, err
		}

	default:
		return nil, eris.Errorf("unsupported content type %q", mediaType)
	}

	if len(names) == 0 {
		return nil, eris.New("no company names supplied")
	}
	if s.opts.MaxNames > 0 && len(names) > s.opts.MaxNames {
		return nil, eris.Errorf("too many names: %d (max %d)", len(names), s.opts.MaxNames)
	}
	return names, nil
}
