package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ChainInfo summarises the connected chain
type ChainInfo struct {
	Name            string `json:"name"`
	SpecName        string `json:"specName"`
	SpecVersion     uint32 `json:"specVersion"`
	LatestHeight    uint64 `json:"latestHeight"`
	FinalizedHeight uint64 `json:"finalizedHeight"`
}

// ChainInfo queries chain name, runtime version and heights concurrently
func (s *Service) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	if s.node == nil {
		return nil, ErrNoNode
	}

	info := &ChainInfo{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		name, err := s.node.ChainName(gctx)
		if err != nil {
			return fmt.Errorf("failed to get chain name: %w", err)
		}
		info.Name = name
		return nil
	})
	g.Go(func() error {
		version, err := s.node.RuntimeVersion(gctx, nil)
		if err != nil {
			return fmt.Errorf("failed to get runtime version: %w", err)
		}
		info.SpecName = version.SpecName
		info.SpecVersion = version.SpecVersion
		return nil
	})
	g.Go(func() error {
		height, err := s.node.LatestHeight(gctx)
		if err != nil {
			return fmt.Errorf("failed to get latest height: %w", err)
		}
		info.LatestHeight = height
		return nil
	})
	g.Go(func() error {
		height, err := s.node.FinalizedHeight(gctx)
		if err != nil {
			return fmt.Errorf("failed to get finalized height: %w", err)
		}
		info.FinalizedHeight = height
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}
