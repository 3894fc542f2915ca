package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/adjust"
	"github.com/ymiah/passportpro/internal/crop"
	"github.com/ymiah/passportpro/internal/export"
	"github.com/ymiah/passportpro/internal/intake"
	"github.com/ymiah/passportpro/internal/pipeline"
)

// POST /api/session
// Creates a session and returns its ID.
func handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	id := sessions.Create()
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

// GET /api/state?session=ID
func handleState(w http.ResponseWriter, r *http.Request) {
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

// POST /api/upload?session=ID
// Accepts the portrait either as multipart field "file" or as the raw body.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	data, err := readUpload(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := pipe.SelectFile(data); err != nil {
		var verr *intake.ValidationError
		switch {
		case errors.As(err, &verr):
			httpError(w, http.StatusBadRequest, verr.Reason)
		case errors.Is(err, pipeline.ErrInvalidTransition):
			httpError(w, http.StatusConflict, err.Error())
		default:
			httpError(w, http.StatusBadRequest, "could not decode image: "+err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

func readUpload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, cfg.MaxUploadBytes+1))
	}
	return io.ReadAll(io.LimitReader(r.Body, cfg.MaxUploadBytes+1))
}

// POST /api/crop?session=ID
// Body: {"selection": {x, y, width, height}} or {"window": {centerX, centerY, zoom}}
func handleCrop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	var req struct {
		Selection *crop.Selection `json:"selection"`
		Window    *crop.Window    `json:"window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.Selection != nil:
		err = pipe.ConfirmCrop(*req.Selection)
	case req.Window != nil:
		err = pipe.ConfirmCropWindow(*req.Window)
	default:
		httpError(w, http.StatusBadRequest, "selection or window required")
		return
	}

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrInvalidTransition) {
			status = http.StatusConflict
		}
		httpError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

// POST /api/crop/cancel?session=ID
func handleCropCancel(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}
	if err := pipe.CancelCrop(); err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

// POST /api/process?session=ID
// Body: {"directive": "optional free-text refinement"}
// Blocks until the backend call completes; concurrent calls get 409.
func handleProcess(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	var req struct {
		Directive string `json:"directive"`
	}
	if r.Body != nil {
		// An empty body means no directive.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := pipe.Submit(r.Context(), req.Directive)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			httpError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, pipeline.ErrInvalidTransition):
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		// Backend failures still move the pipeline to Failed; return the
		// snapshot so the client sees the stage and user-facing message.
		log.Warn().Err(err).Msg("Transformation failed")
		respondJSON(w, http.StatusOK, pipe.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

// POST /api/adjust?session=ID
// Body: {"preset": "studio"} or {"state": {brightness, contrast, exposure, saturation}}
func handleAdjust(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	var req struct {
		Preset string        `json:"preset"`
		State  *adjust.State `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Preset != "":
		if err := pipe.ApplyPreset(req.Preset); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
	case req.State != nil:
		pipe.SetAdjustments(*req.State)
	default:
		httpError(w, http.StatusBadRequest, "preset or state required")
		return
	}
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}

// GET /api/preview?session=ID
// Serves a display-size WebP of the current image with adjustments applied.
func handlePreview(w http.ResponseWriter, r *http.Request) {
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	data, mime, err := pipe.Preview(intake.DefaultPreviewMaxDimension)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// GET /api/export?session=ID&format=jpeg|png&quality=0.9
func handleExport(w http.ResponseWriter, r *http.Request) {
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	exportCfg, err := parseExportConfig(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := pipe.Export(exportCfg)
	if err != nil {
		writeExportError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Write(file.Data)
}

// GET /api/export/bundle?session=ID&format=jpeg|png&quality=0.9
// Serves a ZIP with the photo, the narrative report, and the metrics.
func handleExportBundle(w http.ResponseWriter, r *http.Request) {
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}

	exportCfg, err := parseExportConfig(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Probe the gate before writing headers so a refused export still gets
	// a proper JSON error instead of a truncated ZIP.
	if _, err := pipe.Export(exportCfg); err != nil {
		writeExportError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="passportpro-bundle.zip"`)
	if err := pipe.ExportBundle(w, exportCfg); err != nil {
		log.Error().Err(err).Msg("Failed to write export bundle")
	}
}

func parseExportConfig(r *http.Request) (export.Config, error) {
	exportCfg := export.Config{Format: export.FormatJPEG, Quality: 0.9}
	if f := r.URL.Query().Get("format"); f != "" {
		exportCfg.Format = export.Format(f)
	}
	if q := r.URL.Query().Get("quality"); q != "" {
		var quality float64
		if _, err := fmt.Sscanf(q, "%f", &quality); err != nil {
			return exportCfg, fmt.Errorf("invalid quality %q", q)
		}
		exportCfg.Quality = quality
	}
	return exportCfg, exportCfg.Validate()
}

func writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, export.ErrBelowThreshold):
		httpError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, pipeline.ErrNoResult):
		httpError(w, http.StatusConflict, err.Error())
	default:
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

// POST /api/reset?session=ID
func handleReset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	pipe := sessionPipeline(w, r)
	if pipe == nil {
		return
	}
	pipe.Reset()
	respondJSON(w, http.StatusOK, pipe.Snapshot())
}
