package engine

import (
	"qwed/internal/provider"
)

// NewDefaultRegistry wires every production engine. The consensus chain may
// differ from the translator's chain; polling the same vendor twice would
// defeat the independence the poll relies on.
func NewDefaultRegistry(cfg Config, consensusChain provider.Chain) *Registry {
	r := NewRegistry()
	r.Register(NewMathEngine(cfg))
	r.Register(NewLogicEngine(cfg))
	r.Register(NewCodeEngine(cfg))
	r.Register(NewSQLEngine(cfg))
	r.Register(NewStatsEngine(cfg))
	r.Register(NewFactEngine(cfg))
	r.Register(NewImageEngine(cfg))
	r.Register(NewConsensusEngine(cfg, consensusChain))
	return r
}
