package graphql

import (
	"github.com/graphql-go/graphql"
)

var (
	// Scalar types
	bigIntType = graphql.String
	bytesType  = graphql.String
	hashType   = graphql.String
	jsonType   = graphql.String
	timeType   = graphql.String

	windowType    *graphql.Object
	errorInfoType *graphql.Object
	searchType    *graphql.Object

	chainInfoType  *graphql.Object
	blockDateType  *graphql.Object
	decodedArgType *graphql.Object
	decodedKeyType *graphql.Object

	blockByTimestampType  *graphql.Object
	storageChangeType     *graphql.Object
	storageNumberType     *graphql.Object
	nonceChangeType       *graphql.Object
	bridgeNonceResultType *graphql.Object
	bridgeChannelType     *graphql.Object
)

func init() {
	initSearchTypes()
	initChainTypes()
	initResultTypes()
}

func nonNull(t graphql.Output) *graphql.Field {
	return &graphql.Field{Type: graphql.NewNonNull(t)}
}

func initSearchTypes() {
	windowType = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Window",
		Description: "Height range a search has narrowed to",
		Fields: graphql.Fields{
			"low":  nonNull(bigIntType),
			"high": nonNull(bigIntType),
		},
	})

	errorInfoType = graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchError",
		Fields: graphql.Fields{
			"kind": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "read_failure, contract_violation, cancelled, invalid_request, interrupted or error",
			},
			"message": nonNull(graphql.String),
			"height":  &graphql.Field{Type: bigIntType},
			"window":  &graphql.Field{Type: windowType},
		},
	})

	searchType = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Search",
		Description: "A background search job",
		Fields: graphql.Fields{
			"id":      nonNull(graphql.String),
			"kind":    nonNull(graphql.String),
			"status":  nonNull(graphql.String),
			"request": nonNull(jsonType),
			"result": &graphql.Field{
				Type:        jsonType,
				Description: "JSON encoded result once the search succeeded",
			},
			"error":      &graphql.Field{Type: errorInfoType},
			"window":     &graphql.Field{Type: windowType},
			"createdAt":  nonNull(timeType),
			"finishedAt": &graphql.Field{Type: timeType},
		},
	})
}

func initChainTypes() {
	chainInfoType = graphql.NewObject(graphql.ObjectConfig{
		Name: "ChainInfo",
		Fields: graphql.Fields{
			"name":            nonNull(graphql.String),
			"specName":        nonNull(graphql.String),
			"specVersion":     nonNull(graphql.Int),
			"latestHeight":    nonNull(bigIntType),
			"finalizedHeight": nonNull(bigIntType),
		},
	})

	blockDateType = graphql.NewObject(graphql.ObjectConfig{
		Name: "BlockDate",
		Fields: graphql.Fields{
			"height":    nonNull(bigIntType),
			"blockHash": nonNull(hashType),
			"timestamp": nonNull(bigIntType),
			"time":      nonNull(timeType),
		},
	})

	decodedArgType = graphql.NewObject(graphql.ObjectConfig{
		Name: "DecodedKeyArg",
		Fields: graphql.Fields{
			"name":   nonNull(graphql.String),
			"hasher": nonNull(graphql.String),
			"hash":   &graphql.Field{Type: bytesType},
			"value":  &graphql.Field{Type: bytesType},
		},
	})

	decodedKeyType = graphql.NewObject(graphql.ObjectConfig{
		Name: "DecodedKey",
		Fields: graphql.Fields{
			"pallet": nonNull(graphql.String),
			"item":   nonNull(graphql.String),
			"args":   nonNull(graphql.NewList(graphql.NewNonNull(decodedArgType))),
		},
	})
}

func initResultTypes() {
	blockByTimestampType = graphql.NewObject(graphql.ObjectConfig{
		Name: "BlockByTimestamp",
		Fields: graphql.Fields{
			"height":     nonNull(bigIntType),
			"blockHash":  nonNull(hashType),
			"timestamp":  nonNull(bigIntType),
			"time":       nonNull(timeType),
			"target":     nonNull(bigIntType),
			"targetTime": nonNull(timeType),
			"driftMs":    nonNull(bigIntType),
			"drift": &graphql.Field{
				Type:        graphql.String,
				Description: "Human readable drift, empty within one minute",
			},
			"policy": nonNull(graphql.String),
			"window": nonNull(windowType),
			"reads":  nonNull(graphql.Int),
		},
	})

	storageChangeType = graphql.NewObject(graphql.ObjectConfig{
		Name: "StorageChange",
		Fields: graphql.Fields{
			"key":       nonNull(bytesType),
			"entry":     &graphql.Field{Type: decodedKeyType},
			"head":      nonNull(bigIntType),
			"changed":   nonNull(graphql.Boolean),
			"height":    nonNull(bigIntType),
			"blockHash": nonNull(hashType),
			"previous":  nonNull(bytesType),
			"current":   nonNull(bytesType),
			"window":    nonNull(windowType),
			"reads":     nonNull(graphql.Int),
		},
	})

	storageNumberType = graphql.NewObject(graphql.ObjectConfig{
		Name: "StorageNumber",
		Fields: graphql.Fields{
			"key":       nonNull(bytesType),
			"entry":     &graphql.Field{Type: decodedKeyType},
			"head":      nonNull(bigIntType),
			"target":    nonNull(bigIntType),
			"height":    nonNull(bigIntType),
			"blockHash": nonNull(hashType),
			"value":     nonNull(bigIntType),
			"distance":  nonNull(bigIntType),
			"raw":       nonNull(bytesType),
			"policy":    nonNull(graphql.String),
			"window":    nonNull(windowType),
			"reads":     nonNull(graphql.Int),
		},
	})

	nonceChangeType = graphql.NewObject(graphql.ObjectConfig{
		Name: "NonceChange",
		Fields: graphql.Fields{
			"height":        nonNull(bigIntType),
			"blockHash":     nonNull(hashType),
			"nonce":         nonNull(bigIntType),
			"previousNonce": nonNull(bigIntType),
			"value":         nonNull(bytesType),
		},
	})

	bridgeNonceResultType = graphql.NewObject(graphql.ObjectConfig{
		Name: "BridgeNonceChanges",
		Fields: graphql.Fields{
			"channel":      nonNull(hashType),
			"mode":         nonNull(graphql.String),
			"head":         nonNull(bigIntType),
			"from":         nonNull(bigIntType),
			"to":           nonNull(bigIntType),
			"currentNonce": nonNull(bigIntType),
			"nonceFloor":   nonNull(bigIntType),
			"changes":      nonNull(graphql.NewList(graphql.NewNonNull(nonceChangeType))),
		},
	})

	bridgeChannelType = graphql.NewObject(graphql.ObjectConfig{
		Name: "BridgeChannel",
		Fields: graphql.Fields{
			"channel": nonNull(hashType),
			"nonce":   nonNull(bigIntType),
		},
	})
}
