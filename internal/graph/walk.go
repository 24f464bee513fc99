package graph

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/cache"
	"github.com/reflective-journal-kernel/internal/schema"
)

// NoContextMessage is returned by EgoWalk when there are no anchors.
const NoContextMessage = "No relevant context found in graph."

// DefaultWalkDepth is the default ego walk expansion bound.
const DefaultWalkDepth = 2

// walkEdge is one traversed edge with source/target resolved for the
// direction it was followed in.
type walkEdge struct {
	source string
	target string
	typ    schema.EdgeType
}

// EgoWalk performs the bounded breadth-first traversal from the anchor
// nodes and renders the reached subgraph as a narrative context block.
//
// Expansion is breadth-first with causal priority: within each node's
// adjacency, neighbors reached through causal edges (TRIGGERED,
// REINFORCES, ...) are enqueued first, so when the depth bound truncates
// the frontier the causal subgraph is what survives. A node's direct
// neighbors sit at depth 1; with depth=1 no second hop is taken.
func (s *Store) EgoWalk(anchorIDs []string, depth int) string {
	if len(anchorIDs) == 0 {
		return NoContextMessage
	}
	if depth <= 0 {
		depth = DefaultWalkDepth
	}

	key := cache.Key(s.generation, depth, anchorIDs)
	if block, ok := s.walkCache.Get(key); ok {
		return block
	}

	type queueItem struct {
		id    string
		depth int
	}

	visited := make(map[string]bool, len(anchorIDs))
	var subgraphOrder []string
	queue := make([]queueItem, 0, len(anchorIDs))
	for _, id := range anchorIDs {
		if _, ok := s.nodes[id]; !ok {
			s.logger.Debug("unknown anchor skipped", zap.String("id", id))
			continue
		}
		if !visited[id] {
			visited[id] = true
			subgraphOrder = append(subgraphOrder, id)
			queue = append(queue, queueItem{id, 0})
		}
	}
	if len(subgraphOrder) == 0 {
		return NoContextMessage
	}

	var edges []walkEdge
	seenEdges := make(map[walkEdge]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}

		neighbors := s.Neighbors(current.id, DirectionBoth)
		// Causal edges first; stable so adjacency order is otherwise kept.
		sort.SliceStable(neighbors, func(i, j int) bool {
			return schema.CausalEdges[neighbors[i].Edge.Type] &&
				!schema.CausalEdges[neighbors[j].Edge.Type]
		})

		for _, nb := range neighbors {
			we := walkEdge{
				source: current.id,
				target: nb.Node.ID,
				typ:    nb.Edge.Type,
			}
			if nb.Direction == DirectionIncoming {
				we.source, we.target = nb.Node.ID, current.id
			}
			if !seenEdges[we] {
				seenEdges[we] = true
				edges = append(edges, we)
			}

			if !visited[nb.Node.ID] {
				visited[nb.Node.ID] = true
				subgraphOrder = append(subgraphOrder, nb.Node.ID)
				queue = append(queue, queueItem{nb.Node.ID, current.depth + 1})
			}
		}
	}

	block := s.renderSubgraph(subgraphOrder, edges)
	s.walkCache.Set(key, block)
	return block
}

// renderSubgraph converts the walked subgraph into the narrative block
// injected into prompts.
func (s *Store) renderSubgraph(nodeIDs []string, edges []walkEdge) string {
	var b strings.Builder

	b.WriteString("Graph Context (")
	b.WriteString(strconv.Itoa(len(nodeIDs)))
	b.WriteString(" nodes):\n")

	for _, id := range nodeIDs {
		n := s.nodes[id]
		b.WriteString("- [")
		b.WriteString(string(n.Type))
		b.WriteString("] ")
		b.WriteString(n.DisplayLabel())
		b.WriteByte('\n')
	}

	b.WriteString("Relationships:")
	for _, e := range edges {
		b.WriteString("\n- '")
		b.WriteString(s.labelOf(e.source))
		b.WriteString("' --")
		b.WriteString(string(e.typ))
		b.WriteString("--> '")
		b.WriteString(s.labelOf(e.target))
		b.WriteString("'")
	}

	return b.String()
}

func (s *Store) labelOf(id string) string {
	if n, ok := s.nodes[id]; ok {
		return n.DisplayLabel()
	}
	return "Unknown"
}
