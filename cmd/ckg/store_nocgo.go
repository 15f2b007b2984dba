//go:build !cgo

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/graph"
)

func openKuzuStore(string, *zap.Logger) (graph.Store, error) {
	return nil, errors.New("kuzu backend requires a cgo build")
}
