package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"go.uber.org/zap"
)

// Handler dispatches probe_* methods to the search service
type Handler struct {
	service *search.Service
	logger  *zap.Logger
}

// NewHandler creates a new JSON-RPC handler
func NewHandler(svc *search.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  logger,
	}
}

// HandleMethod handles a JSON-RPC method call
func (h *Handler) HandleMethod(ctx context.Context, method string, params json.RawMessage) (interface{}, *Error) {
	switch method {
	// Chain
	case "probe_chainInfo":
		return h.chainInfo(ctx)
	case "probe_blockDate":
		return h.blockDate(ctx, params)
	case "probe_decodeKey":
		return h.decodeKey(params)
	case "probe_listBridgeChannels":
		return h.listBridgeChannels(ctx)
	// Synchronous searches, cancelled with the request
	case "probe_findBlockByTimestamp":
		var req search.TimestampRequest
		return call(ctx, params, &req, func(ctx context.Context) (interface{}, error) {
			return h.service.FindBlockByTimestamp(ctx, req, nil)
		})
	case "probe_findStorageChange":
		var req search.StorageChangeRequest
		return call(ctx, params, &req, func(ctx context.Context) (interface{}, error) {
			return h.service.FindStorageChange(ctx, req, nil)
		})
	case "probe_findStorageNumber":
		var req search.StorageNumberRequest
		return call(ctx, params, &req, func(ctx context.Context) (interface{}, error) {
			return h.service.FindStorageNumber(ctx, req, nil)
		})
	case "probe_findBridgeNonceChanges":
		var req search.BridgeNonceRequest
		return call(ctx, params, &req, func(ctx context.Context) (interface{}, error) {
			return h.service.FindBridgeNonceChanges(ctx, req, nil)
		})
	// Background searches
	case "probe_startSearch":
		return h.startSearch(params)
	case "probe_getSearch":
		return h.getSearch(params)
	case "probe_listSearches":
		return h.listSearches(params)
	case "probe_cancelSearch":
		return h.cancelSearch(params)
	default:
		return nil, NewError(MethodNotFound, "method not found", method)
	}
}

func decodeParams(params json.RawMessage, v interface{}) *Error {
	if len(params) == 0 {
		return NewError(InvalidParams, "missing params", nil)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return NewError(InvalidParams, "invalid params", err.Error())
	}
	return nil
}

func call(ctx context.Context, params json.RawMessage, req interface{}, fn func(context.Context) (interface{}, error)) (interface{}, *Error) {
	if rpcErr := decodeParams(params, req); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := fn(ctx)
	if err != nil {
		return nil, toError(err)
	}
	return result, nil
}

// toError maps service errors to JSON-RPC errors. Search failures keep their window.
func toError(err error) *Error {
	switch {
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, search.ErrInvalidKey):
		return NewError(InvalidParams, err.Error(), nil)
	case errors.Is(err, search.ErrJobNotFound),
		errors.Is(err, substrate.ErrBlockNotFound),
		errors.Is(err, substrate.ErrUnknownKey):
		return NewError(NotFound, err.Error(), nil)
	case errors.Is(err, search.ErrBusy):
		return NewError(Busy, err.Error(), nil)
	case errors.Is(err, search.ErrJobFinished):
		return NewError(Conflict, err.Error(), nil)
	case errors.Is(err, search.ErrNoNode), errors.Is(err, search.ErrClosed):
		return NewError(Unavailable, err.Error(), nil)
	}
	if _, ok := locator.AsSearchError(err); ok {
		return NewError(SearchFailed, err.Error(), search.NewErrorInfo(err))
	}
	return NewError(InternalError, err.Error(), nil)
}

func (h *Handler) chainInfo(ctx context.Context) (interface{}, *Error) {
	info, err := h.service.ChainInfo(ctx)
	if err != nil {
		h.logger.Warn("failed to get chain info", zap.Error(err))
		return nil, toError(err)
	}
	return info, nil
}

func (h *Handler) blockDate(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Height interface{} `json:"height"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	var height uint64
	switch v := p.Height.(type) {
	case float64:
		if v < 0 {
			return nil, NewError(InvalidParams, "height must not be negative", nil)
		}
		height = uint64(v)
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, NewError(InvalidParams, "invalid height format", err.Error())
		}
		height = n
	case nil:
		return nil, NewError(InvalidParams, "missing required parameter: height", nil)
	default:
		return nil, NewError(InvalidParams, "height must be a string or number", nil)
	}

	res, err := h.service.BlockDate(ctx, height)
	if err != nil {
		return nil, toError(err)
	}
	return res, nil
}

func (h *Handler) decodeKey(params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Key string `json:"key"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	decoded, err := h.service.DecodeKey(p.Key)
	if err != nil {
		return nil, toError(err)
	}
	return decoded, nil
}

func (h *Handler) listBridgeChannels(ctx context.Context) (interface{}, *Error) {
	channels, err := h.service.ListBridgeChannels(ctx)
	if err != nil {
		return nil, toError(err)
	}
	return channels, nil
}

func (h *Handler) startSearch(params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Kind    string          `json:"kind"`
		Request json.RawMessage `json:"request"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	kind, err := search.ParseKind(p.Kind)
	if err != nil {
		return nil, toError(err)
	}
	rec, err := h.service.Start(kind, p.Request)
	if err != nil {
		return nil, toError(err)
	}
	return rec, nil
}

func (h *Handler) searchID(params json.RawMessage) (string, *Error) {
	var p struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return "", rpcErr
	}
	if p.ID == "" {
		return "", NewError(InvalidParams, "missing required parameter: id", nil)
	}
	return p.ID, nil
}

func (h *Handler) getSearch(params json.RawMessage) (interface{}, *Error) {
	id, rpcErr := h.searchID(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := h.service.Get(id)
	if err != nil {
		return nil, toError(err)
	}
	return rec, nil
}

func (h *Handler) listSearches(params json.RawMessage) (interface{}, *Error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewError(InvalidParams, "invalid params", err.Error())
		}
	}
	records, err := h.service.List(p.Limit)
	if err != nil {
		return nil, toError(err)
	}
	return records, nil
}

func (h *Handler) cancelSearch(params json.RawMessage) (interface{}, *Error) {
	id, rpcErr := h.searchID(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := h.service.Cancel(id); err != nil {
		return nil, toError(err)
	}
	return true, nil
}
