package graphql

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/graphql-go/graphql"
	graphqlhandler "github.com/graphql-go/handler"
	"go.uber.org/zap"
)

// Handler handles GraphQL requests
type Handler struct {
	schema  *Schema
	handler *graphqlhandler.Handler
	logger  *zap.Logger
}

// NewHandler creates a new GraphQL handler. The playground is served on GET requests
// from browsers.
func NewHandler(svc *search.Service, logger *zap.Logger) (*Handler, error) {
	schema, err := NewSchema(svc, logger)
	if err != nil {
		return nil, err
	}

	h := graphqlhandler.New(&graphqlhandler.Config{
		Schema:     &schema.schema,
		Pretty:     true,
		GraphiQL:   false,
		Playground: true,
	})

	return &Handler{
		schema:  schema,
		handler: h,
		logger:  schema.logger,
	}, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// ExecuteQuery executes a GraphQL query. Resolvers run searches under ctx, so cancelling it
// stops them.
func (h *Handler) ExecuteQuery(ctx context.Context, query string, variables map[string]interface{}) *graphql.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	return graphql.Do(graphql.Params{
		Schema:         h.schema.schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        ctx,
	})
}

// ExecuteQueryJSON executes a GraphQL query and returns JSON
func (h *Handler) ExecuteQueryJSON(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	return json.Marshal(h.ExecuteQuery(ctx, query, variables))
}
