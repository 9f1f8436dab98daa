package search

import (
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorindex"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, req Request)
	AfterVectorSearch(candidates []vectorindex.Hit)
	AfterStatusGate(kept []vectorindex.Hit, dropped int)
	AfterRanking(results []*core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Request)                  {}
func (n *noopMonitor) AfterVectorSearch(_ []vectorindex.Hit)      {}
func (n *noopMonitor) AfterStatusGate(_ []vectorindex.Hit, _ int) {}
func (n *noopMonitor) AfterRanking(_ []*core.SearchResult)        {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)              {}
