package crawler

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nao1215/sitegraph/internal/model"
)

// LinkPath is a pending edge: Child was found on Parent.
// The seed has an empty Parent.
type LinkPath struct {
	Parent string
	Child  string
}

// State is shared by all workers of one crawl.
// Lock order is always frontierMu before graphMu.
type State struct {
	frontierMu sync.RWMutex
	frontier   []LinkPath

	graphMu sync.RWMutex
	graph   *model.LinkGraph

	visited  atomic.Int64
	maxLinks int64
	scope    *Scope
}

func newState(graph *model.LinkGraph, scope *Scope, maxLinks int) *State {
	return &State{
		graph:    graph,
		scope:    scope,
		maxLinks: int64(maxLinks),
	}
}

func (s *State) push(p LinkPath) {
	s.frontierMu.Lock()
	defer s.frontierMu.Unlock()
	s.frontier = append(s.frontier, p)
}

// pop removes the most recently pushed edge.
func (s *State) pop() (LinkPath, bool) {
	s.frontierMu.Lock()
	defer s.frontierMu.Unlock()

	n := len(s.frontier)
	if n == 0 {
		return LinkPath{}, false
	}
	p := s.frontier[n-1]
	s.frontier = s.frontier[:n-1]
	return p, true
}

func (s *State) pending() int {
	s.frontierMu.RLock()
	defer s.frontierMu.RUnlock()
	return len(s.frontier)
}

func (s *State) seen(url string) bool {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return s.graph.Visited(url)
}

func (s *State) graphLen() int {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return s.graph.Len()
}

func (s *State) budgetExhausted() bool {
	return s.visited.Load() >= s.maxLinks
}

// fold records a fetched page. New in-scope links go onto the frontier
// until the budget is used up, then the page is added to the graph.
func (s *State) fold(link, parent string, page *model.Page, logger *slog.Logger) {
	s.frontierMu.Lock()
	defer s.frontierMu.Unlock()
	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	children := make([]string, 0, len(page.Links))
	pushing := true
	for _, raw := range page.Links {
		u, ok := Normalize(raw)
		if !ok {
			continue
		}
		child := u.String()
		children = append(children, child)

		if !pushing {
			continue
		}
		if s.budgetExhausted() {
			pushing = false
			continue
		}
		if !s.scope.Allows(u) || s.graph.Visited(child) {
			continue
		}
		s.frontier = append(s.frontier, LinkPath{Parent: link, Child: child})
	}

	if err := s.graph.Update(link, parent, children, page.Images, page.Titles); err != nil {
		logger.Error("failed to update link graph", "url", link, "error", err)
	}
}
