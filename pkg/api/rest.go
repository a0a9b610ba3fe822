package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRESTBodySize = 1 << 20

// errorResponse is the body of every failed REST call
type errorResponse struct {
	Error  string            `json:"error"`
	Search *search.ErrorInfo `json:"search,omitempty"`
}

// restHandler serves the REST API on top of the search service
type restHandler struct {
	service *search.Service
	prefix  string
	logger  *zap.Logger
}

func (h *restHandler) routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/searches", func(r chi.Router) {
		r.Get("/", h.listSearches)
		r.Post("/{kind}", h.startSearch)
		r.Get("/{id}", h.getSearch)
		r.Delete("/{id}", h.cancelSearch)
	})
	r.Get("/chain", h.chainInfo)
	r.Get("/blocks/{height}/date", h.blockDate)
	r.Get("/bridge/channels", h.bridgeChannels)
	r.Post("/keys/decode", h.decodeKey)

	return r
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, search.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrJobNotFound),
		errors.Is(err, substrate.ErrBlockNotFound),
		errors.Is(err, substrate.ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, search.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, search.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, search.ErrNoNode), errors.Is(err, search.ErrClosed):
		return http.StatusServiceUnavailable
	}
	if _, ok := locator.AsSearchError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *restHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}
	if _, ok := locator.AsSearchError(err); ok {
		resp.Search = search.NewErrorInfo(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func (h *restHandler) startSearch(w http.ResponseWriter, r *http.Request) {
	kind, err := search.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRESTBodySize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return
	}

	rec, err := h.service.Start(kind, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// wait=true holds the request until the search ends or the client goes away
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if done, err := h.service.Wait(r.Context(), rec.ID); err == nil {
			writeJSON(w, http.StatusOK, done)
			return
		}
	}

	w.Header().Set("Location", h.prefix+"/searches/"+rec.ID)
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *restHandler) listSearches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.service.List(limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *restHandler) getSearch(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *restHandler) cancelSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *restHandler) chainInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.ChainInfo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *restHandler) blockDate(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "height must be a block number"})
		return
	}

	res, err := h.service.BlockDate(r.Context(), height)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *restHandler) bridgeChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.ListBridgeChannels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (h *restHandler) decodeKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRESTBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"key\": \"0x...\"}"})
		return
	}

	decoded, err := h.service.DecodeKey(req.Key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decoded)
}
