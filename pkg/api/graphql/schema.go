package graphql

import (
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// Schema holds the GraphQL schema and the service it resolves against
type Schema struct {
	schema  graphql.Schema
	service *search.Service
	logger  *zap.Logger
}

// SchemaBuilder helps construct a GraphQL schema using the Builder pattern
type SchemaBuilder struct {
	schema    *Schema
	queries   graphql.Fields
	mutations graphql.Fields
}

// NewSchemaBuilder creates a new schema builder
func NewSchemaBuilder(svc *search.Service, logger *zap.Logger) *SchemaBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaBuilder{
		schema: &Schema{
			service: svc,
			logger:  logger,
		},
		queries:   make(graphql.Fields),
		mutations: make(graphql.Fields),
	}
}

func requiredString() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
}

// WithChainQueries adds chain metadata and key decoding queries
func (b *SchemaBuilder) WithChainQueries() *SchemaBuilder {
	s := b.schema

	b.queries["chainInfo"] = &graphql.Field{
		Type:    graphql.NewNonNull(chainInfoType),
		Resolve: s.resolveChainInfo,
	}
	b.queries["blockDate"] = &graphql.Field{
		Type:        graphql.NewNonNull(blockDateType),
		Description: "Timestamp.Now at a block",
		Args: graphql.FieldConfigArgument{
			"height": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
		},
		Resolve: s.resolveBlockDate,
	}
	b.queries["decodeKey"] = &graphql.Field{
		Type: graphql.NewNonNull(decodedKeyType),
		Args: graphql.FieldConfigArgument{
			"key": requiredString(),
		},
		Resolve: s.resolveDecodeKey,
	}
	b.queries["bridgeChannels"] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(bridgeChannelType))),
		Description: "Channels with an inbound nonce and their nonce at the head",
		Resolve:     s.resolveBridgeChannels,
	}
	return b
}

// WithSearchQueries adds the synchronous searches and job lookups
func (b *SchemaBuilder) WithSearchQueries() *SchemaBuilder {
	s := b.schema

	b.queries["blockByTimestamp"] = &graphql.Field{
		Type: graphql.NewNonNull(blockByTimestampType),
		Args: graphql.FieldConfigArgument{
			"timestamp": &graphql.ArgumentConfig{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Unix seconds, unix milliseconds or a date",
			},
			"policy": &graphql.ArgumentConfig{Type: graphql.String},
		},
		Resolve: s.resolveBlockByTimestamp,
	}
	b.queries["storageChange"] = &graphql.Field{
		Type: graphql.NewNonNull(storageChangeType),
		Args: graphql.FieldConfigArgument{
			"key": requiredString(),
		},
		Resolve: s.resolveStorageChange,
	}
	b.queries["storageNumber"] = &graphql.Field{
		Type: graphql.NewNonNull(storageNumberType),
		Args: graphql.FieldConfigArgument{
			"key":    requiredString(),
			"target": requiredString(),
			"policy": &graphql.ArgumentConfig{Type: graphql.String},
			"width":  &graphql.ArgumentConfig{Type: graphql.Int},
		},
		Resolve: s.resolveStorageNumber,
	}
	b.queries["bridgeNonceChanges"] = &graphql.Field{
		Type: graphql.NewNonNull(bridgeNonceResultType),
		Args: graphql.FieldConfigArgument{
			"channel": requiredString(),
			"mode": &graphql.ArgumentConfig{
				Type:        graphql.String,
				Description: "blocks (default) or nonces",
			},
			"blockWindow": &graphql.ArgumentConfig{Type: bigIntType},
			"nonceWindow": &graphql.ArgumentConfig{Type: bigIntType},
		},
		Resolve: s.resolveBridgeNonceChanges,
	}
	b.queries["search"] = &graphql.Field{
		Type: searchType,
		Args: graphql.FieldConfigArgument{
			"id": requiredString(),
		},
		Resolve: s.resolveSearch,
	}
	b.queries["searches"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(searchType))),
		Args: graphql.FieldConfigArgument{
			"limit": &graphql.ArgumentConfig{Type: graphql.Int},
		},
		Resolve: s.resolveSearches,
	}
	return b
}

// WithSearchMutations adds starting and cancelling background searches
func (b *SchemaBuilder) WithSearchMutations() *SchemaBuilder {
	s := b.schema

	b.mutations["startSearch"] = &graphql.Field{
		Type: graphql.NewNonNull(searchType),
		Args: graphql.FieldConfigArgument{
			"kind": &graphql.ArgumentConfig{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "block_by_timestamp, storage_change, storage_number or bridge_nonce_changes",
			},
			"request": &graphql.ArgumentConfig{
				Type:        graphql.NewNonNull(jsonType),
				Description: "JSON encoded request",
			},
		},
		Resolve: s.resolveStartSearch,
	}
	b.mutations["cancelSearch"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Boolean),
		Args: graphql.FieldConfigArgument{
			"id": requiredString(),
		},
		Resolve: s.resolveCancelSearch,
	}
	return b
}

// Build creates the schema
func (b *SchemaBuilder) Build() (*Schema, error) {
	config := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: b.queries,
		}),
	}
	if len(b.mutations) > 0 {
		config.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: b.mutations,
		})
	}

	schema, err := graphql.NewSchema(config)
	if err != nil {
		return nil, err
	}
	b.schema.schema = schema
	return b.schema, nil
}

// NewSchema creates the full schema
func NewSchema(svc *search.Service, logger *zap.Logger) (*Schema, error) {
	return NewSchemaBuilder(svc, logger).
		WithChainQueries().
		WithSearchQueries().
		WithSearchMutations().
		Build()
}
