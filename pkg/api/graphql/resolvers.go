package graphql

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

func stringArg(p graphql.ResolveParams, name string) string {
	v, _ := p.Args[name].(string)
	return v
}

func uintArg(p graphql.ResolveParams, name string) (uint64, error) {
	v, ok := p.Args[name].(string)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

func (s *Schema) resolveChainInfo(p graphql.ResolveParams) (interface{}, error) {
	info, err := s.service.ChainInfo(p.Context)
	if err != nil {
		s.logger.Warn("failed to get chain info", zap.Error(err))
		return nil, err
	}
	return chainInfoToMap(info), nil
}

func (s *Schema) resolveBlockDate(p graphql.ResolveParams) (interface{}, error) {
	height, err := strconv.ParseUint(stringArg(p, "height"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid height format: %w", err)
	}
	res, err := s.service.BlockDate(p.Context, height)
	if err != nil {
		return nil, err
	}
	return blockDateToMap(res), nil
}

func (s *Schema) resolveDecodeKey(p graphql.ResolveParams) (interface{}, error) {
	decoded, err := s.service.DecodeKey(stringArg(p, "key"))
	if err != nil {
		return nil, err
	}
	return decodedKeyToMap(decoded), nil
}

func (s *Schema) resolveBridgeChannels(p graphql.ResolveParams) (interface{}, error) {
	channels, err := s.service.ListBridgeChannels(p.Context)
	if err != nil {
		return nil, err
	}
	return bridgeChannelsToList(channels), nil
}

func (s *Schema) resolveBlockByTimestamp(p graphql.ResolveParams) (interface{}, error) {
	res, err := s.service.FindBlockByTimestamp(p.Context, search.TimestampRequest{
		Timestamp: stringArg(p, "timestamp"),
		Policy:    stringArg(p, "policy"),
	}, nil)
	if err != nil {
		return nil, err
	}
	return blockByTimestampToMap(res), nil
}

func (s *Schema) resolveStorageChange(p graphql.ResolveParams) (interface{}, error) {
	res, err := s.service.FindStorageChange(p.Context, search.StorageChangeRequest{
		Key: stringArg(p, "key"),
	}, nil)
	if err != nil {
		return nil, err
	}
	return storageChangeToMap(res), nil
}

func (s *Schema) resolveStorageNumber(p graphql.ResolveParams) (interface{}, error) {
	width, _ := p.Args["width"].(int)
	res, err := s.service.FindStorageNumber(p.Context, search.StorageNumberRequest{
		Key:    stringArg(p, "key"),
		Target: stringArg(p, "target"),
		Policy: stringArg(p, "policy"),
		Width:  width,
	}, nil)
	if err != nil {
		return nil, err
	}
	return storageNumberToMap(res), nil
}

func (s *Schema) resolveBridgeNonceChanges(p graphql.ResolveParams) (interface{}, error) {
	blockWindow, err := uintArg(p, "blockWindow")
	if err != nil {
		return nil, err
	}
	nonceWindow, err := uintArg(p, "nonceWindow")
	if err != nil {
		return nil, err
	}
	res, err := s.service.FindBridgeNonceChanges(p.Context, search.BridgeNonceRequest{
		Channel:     stringArg(p, "channel"),
		Mode:        stringArg(p, "mode"),
		BlockWindow: blockWindow,
		NonceWindow: nonceWindow,
	}, nil)
	if err != nil {
		return nil, err
	}
	return bridgeNonceResultToMap(res), nil
}

func (s *Schema) resolveSearch(p graphql.ResolveParams) (interface{}, error) {
	rec, err := s.service.Get(stringArg(p, "id"))
	if err != nil {
		return nil, err
	}
	return recordToMap(rec), nil
}

func (s *Schema) resolveSearches(p graphql.ResolveParams) (interface{}, error) {
	limit, _ := p.Args["limit"].(int)
	records, err := s.service.List(limit)
	if err != nil {
		return nil, err
	}
	return recordsToList(records), nil
}

func (s *Schema) resolveStartSearch(p graphql.ResolveParams) (interface{}, error) {
	kind, err := search.ParseKind(stringArg(p, "kind"))
	if err != nil {
		return nil, err
	}
	request := stringArg(p, "request")
	if !json.Valid([]byte(request)) {
		return nil, fmt.Errorf("%w: request is not valid JSON", search.ErrInvalidRequest)
	}
	rec, err := s.service.Start(kind, json.RawMessage(request))
	if err != nil {
		return nil, err
	}
	return recordToMap(rec), nil
}

func (s *Schema) resolveCancelSearch(p graphql.ResolveParams) (interface{}, error) {
	if err := s.service.Cancel(stringArg(p, "id")); err != nil {
		return nil, err
	}
	return true, nil
}
