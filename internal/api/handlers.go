package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/starford/laguz/internal/labelservice"
	"github.com/starford/laguz/internal/session"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *labelservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *labelservice.Service) *Handler {
	return &Handler{svc: svc}
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// Vocabulary handles GET /api/vocabulary.
//
//	@Summary		List the label vocabulary
//	@Tags			labels
//	@Produce		json
//	@Success		200	{object}	VocabularyResponse
//	@Security		BearerAuth
//	@Router			/vocabulary [get]
func (h *Handler) Vocabulary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VocabularyResponse{Labels: h.svc.Vocabulary()})
}

// ListRows handles GET /api/dataset.
//
//	@Summary		List dataset rows
//	@Tags			dataset
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	RowsPage
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataset [get]
func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := h.svc.Rows(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list rows", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Stats handles GET /api/dataset/stats.
//
//	@Summary		Count rows per label
//	@Tags			dataset
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataset/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: stats})
}

// Scan handles POST /api/dataset/scan.
//
//	@Summary		Build a dataset file from the images on disk
//	@Tags			dataset
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	true	"Scan options"
//	@Success		200		{object}	CreateResult
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataset/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Create(r.Context(), req.Filename, req.HaveLabels, session.Always(req.Save))
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Open handles POST /api/dataset/open.
//
//	@Summary		Open a dataset file and start labeling
//	@Tags			dataset
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	false	"Dataset file"
//	@Success		200		{object}	SessionState
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataset/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.svc.Open(r.Context(), req.Filename)
	if err != nil {
		writeError(w, "open", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Session handles GET /api/session.
//
//	@Summary		Current session state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionState
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State())
}

// Select handles POST /api/session/select.
//
//	@Summary		Select a row, committing the labels of the current one
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectRequest	true	"Row index"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/select [post]
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("index is required"))
		return
	}
	h.respondState(w, "select")(h.svc.Select(r.Context(), *req.Index))
}

// Next handles POST /api/session/next.
//
//	@Summary		Move to the next row
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionState
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/next [post]
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, "next")(h.svc.Next(r.Context()))
}

// Prev handles POST /api/session/prev.
//
//	@Summary		Move to the previous row
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionState
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/prev [post]
func (h *Handler) Prev(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, "prev")(h.svc.Prev(r.Context()))
}

// SetChecked handles PUT /api/session/checked.
//
//	@Summary		Replace the checked labels of the current row
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckedRequest	true	"Label indices"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/checked [put]
func (h *Handler) SetChecked(w http.ResponseWriter, r *http.Request) {
	var req CheckedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondState(w, "set checked")(h.svc.SetChecked(req.Labels))
}

// Toggle handles POST /api/session/toggle.
//
//	@Summary		Flip one label of the current row
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ToggleRequest	true	"Label index"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/toggle [post]
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Label == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("label is required"))
		return
	}
	h.respondState(w, "toggle")(h.svc.Toggle(*req.Label))
}

// Save handles POST /api/session/save.
//
//	@Summary		Commit the current row and write the dataset file
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionState
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, "save")(h.svc.Save(r.Context()))
}

// Stop handles POST /api/session/stop.
//
//	@Summary		End the session; save tells whether unsaved edits are written
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StopRequest	false	"Answer to the unsaved changes question"
//	@Success		200		{object}	StopResult
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/stop [post]
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Stop(r.Context(), session.Always(req.Save))
	if err != nil {
		writeError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Preview handles GET /api/session/preview.
//
//	@Summary		PNG preview of the current image with its labels
//	@Tags			session
//	@Produce		png
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Preview(r.Context())
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writePNG(w, out)
}

// History handles GET /api/history.
//
//	@Summary		Recent label changes, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of changes"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	changes, err := h.svc.History(limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Changes: changes})
}

// Search handles GET /api/search.
//
//	@Summary		Saved rows carrying a label
//	@Tags			history
//	@Produce		json
//	@Param			label	query		string	true	"Label identifier"
//	@Param			limit	query		int		false	"Maximum number of rows"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label := q.Get("label")
	if label == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'label' is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.svc.FindByLabel(label, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Rows: rows})
}

func (h *Handler) respondState(w http.ResponseWriter, op string) func(session.State, error) {
	return func(st session.State, err error) {
		if err != nil {
			writeError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
