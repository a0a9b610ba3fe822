package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/0xmhha/chainprobe/pkg/search"
	"go.uber.org/zap"
)

const (
	maxRequestBodySize = 1 << 20
	maxBatchSize       = 50
)

// Server handles JSON-RPC HTTP requests
type Server struct {
	handler *Handler
	logger  *zap.Logger
}

// NewServer creates a new JSON-RPC server
func NewServer(svc *search.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		handler: NewHandler(svc, logger),
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, NewErrorResponse(nil, NewError(ParseError, "request body too large or unreadable", err.Error())))
		return
	}
	defer r.Body.Close()

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.handleBatchRequest(w, r, trimmed)
		return
	}
	s.handleSingleRequest(w, r, trimmed)
}

func (s *Server) handleSingleRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeResponse(w, NewErrorResponse(nil, NewError(ParseError, "parse error", err.Error())))
		return
	}
	s.writeResponse(w, s.execute(r.Context(), &req))
}

func (s *Server) handleBatchRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	var batch BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		s.writeResponse(w, NewErrorResponse(nil, NewError(ParseError, "parse error", err.Error())))
		return
	}
	if len(batch) == 0 {
		s.writeResponse(w, NewErrorResponse(nil, NewError(InvalidRequest, "empty batch", nil)))
		return
	}
	if len(batch) > maxBatchSize {
		s.logger.Warn("batch request too large", zap.Int("batch_size", len(batch)))
		s.writeResponse(w, NewErrorResponse(nil, NewError(InvalidRequest, "batch too large", maxBatchSize)))
		return
	}

	responses := make(BatchResponse, 0, len(batch))
	for i := range batch {
		responses = append(responses, *s.execute(r.Context(), &batch[i]))
	}
	s.writeResponse(w, responses)
}

func (s *Server) execute(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, NewError(InvalidRequest, "invalid jsonrpc version", nil))
	}
	if req.Method == "" {
		return NewErrorResponse(req.ID, NewError(InvalidRequest, "missing method", nil))
	}

	result, rpcErr := s.handler.HandleMethod(ctx, req.Method, req.Params)
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}

// writeResponse always answers 200 OK; errors travel in the JSON-RPC envelope
func (s *Server) writeResponse(w http.ResponseWriter, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
