package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/worksheet"
	"github.com/brunobiangulo/worksheet/export"
	"github.com/brunobiangulo/worksheet/pipeline"
	"github.com/brunobiangulo/worksheet/summary"
)

const maxUploadBytes = 50 << 20 // 50MB

type handler struct {
	engine worksheet.Engine
}

func newHandler(e worksheet.Engine) *handler {
	return &handler{engine: e}
}

// POST /extract
// Accepts a multipart upload in the "file" field or the raw document as
// the request body, named by the "filename" query parameter.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		filename string
		data     []byte
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		// Sanitise filename to prevent path traversal.
		filename = filepath.Base(header.Filename)
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
	} else {
		filename = filepath.Base(r.URL.Query().Get("filename"))
		if filename == "." || filename == "/" {
			filename = "upload"
		}
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
	}

	var opts []worksheet.ExtractOption
	q := r.URL.Query()
	if force, _ := strconv.ParseBool(q.Get("force")); force {
		opts = append(opts, worksheet.WithForce())
	}
	if format := q.Get("format"); format != "" {
		opts = append(opts, worksheet.WithFormat(format))
	}

	ex, err := h.engine.Extract(ctx, filename, data, opts...)
	if err != nil {
		h.fail(w, err, "extraction failed", "file", filename)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// GET /extractions
func (h *handler) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListExtractions(r.Context())
	if err != nil {
		h.fail(w, err, "failed to list extractions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"extractions": list,
	})
}

// GET /extractions/{id}
// Query parameters size, tread, width, customer and scrap narrow the
// records; the groups and totals are recomputed over what remains.
func (h *handler) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.loadFiltered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// DELETE /extractions/{id}
func (h *handler) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.DeleteExtraction(r.Context(), id); err != nil {
		h.fail(w, err, "delete failed", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /extractions/{id}/export?format=xlsx|csv&table=records|materials|patches
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	table, err := export.ParseTable(q.Get("table"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ex, ok := h.loadFiltered(w, r)
	if !ok {
		return
	}

	// Render fully before writing headers so failures still get a JSON error.
	var buf bytes.Buffer
	name := strings.TrimSuffix(ex.Filename, filepath.Ext(ex.Filename))
	switch format {
	case export.FormatCSV:
		err = export.WriteCSV(&buf, &ex.Result, table)
		name += "-" + string(table) + ".csv"
	default:
		err = export.WriteXLSX(&buf, &ex.Result)
		name += ".xlsx"
	}
	if err != nil {
		h.fail(w, err, "export failed", "id", ex.ID)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// GET /records/search?q=&limit=
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := boundedInt(q.Get("limit"), 20, 200)

	hits, err := h.engine.SearchRecords(r.Context(), query, limit)
	if err != nil {
		h.fail(w, err, "search failed", "q", query)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": hits,
	})
}

// GET /records/similar?size=&width=&k=
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, width := strings.TrimSpace(q.Get("size")), strings.TrimSpace(q.Get("width"))
	if size == "" || width == "" {
		writeError(w, http.StatusBadRequest, "size and width are required")
		return
	}
	k := boundedInt(q.Get("k"), 10, 100)

	hits, err := h.engine.SimilarRecords(r.Context(), size, width, k)
	if err != nil {
		h.fail(w, err, "similarity search failed", "size", size, "width", width)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": hits,
	})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.fail(w, err, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *handler) loadFiltered(w http.ResponseWriter, r *http.Request) (*worksheet.Extraction, bool) {
	id := r.PathValue("id")
	ex, err := h.engine.GetExtraction(r.Context(), id)
	if err != nil {
		h.fail(w, err, "failed to load extraction", "id", id)
		return nil, false
	}

	f := filterFromQuery(r)
	if !f.IsZero() {
		res := pipeline.Assemble(f.Apply(ex.Records))
		res.Pages, res.Skipped = ex.Pages, ex.Skipped
		ex.Result = *res
	}
	return ex, true
}

func filterFromQuery(r *http.Request) summary.Filter {
	q := r.URL.Query()
	scrap, _ := strconv.ParseBool(q.Get("scrap"))
	return summary.Filter{
		TireSize:  q.Get("size"),
		TreadCode: q.Get("tread"),
		Width:     q.Get("width"),
		Customer:  q.Get("customer"),
		ScrapOnly: scrap,
	}
}

// fail maps engine errors to HTTP statuses. Unexpected errors are logged
// and reported with the generic message.
func (h *handler) fail(w http.ResponseWriter, err error, msg string, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(msg, append(attrs, "error", err)...)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, worksheet.ErrExtractionNotFound):
		return http.StatusNotFound
	case errors.Is(err, worksheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, worksheet.ErrEmptyDocument),
		errors.Is(err, worksheet.ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worksheet.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, worksheet.ErrStoreDisabled):
		return http.StatusNotImplemented
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func boundedInt(s string, fallback, limit int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return min(n, limit)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
