//go:build cgo

package main

import (
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/graph"
)

func openKuzuStore(path string, logger *zap.Logger) (graph.Store, error) {
	return graph.NewKuzuFileStore(path, logger)
}
