// Package graph provides the directed multigraph of reflection entities
// and the traversal queries used to surface past context into prompts.
//
// The whole graph lives in memory and persists as one node-link JSON
// document. Every mutation rewrites the document through an atomic
// temp-file rename, so a crash mid-write leaves the previous document
// intact. Load failures are non-fatal: a missing file starts an empty
// graph, a corrupt file is renamed aside with a .corrupt suffix and the
// store starts empty.
package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/cache"
	"github.com/reflective-journal-kernel/internal/jsonx"
	"github.com/reflective-journal-kernel/internal/schema"
)

// Sentinel errors.
var (
	// ErrDanglingEdge is returned by AddEdge when an endpoint id does not
	// exist in the graph.
	ErrDanglingEdge = errors.New("graph: edge endpoint does not exist")
)

// Direction selects which edges Neighbors follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Neighbor is one adjacency result: the neighboring node, the connecting
// edge, and which direction the edge was followed in.
type Neighbor struct {
	Node      *schema.Node
	Edge      *schema.Edge
	Direction Direction
}

// Config configures the graph store.
type Config struct {
	Path string // Path of the node-link JSON document

	// Walk cache tuning; zero values select the cache defaults.
	WalkCacheSize int64
	WalkCacheTTL  time.Duration
}

// Store is the in-memory graph with eager whole-file persistence.
type Store struct {
	config Config
	logger *zap.Logger

	nodes map[string]*schema.Node
	order []string // node ids in insertion order, for deterministic scans
	edges []*schema.Edge
	out   map[string][]int // node id -> indices into edges
	in    map[string][]int

	index *Index // bleve label index for ranked anchor search

	walkCache  *cache.WalkCache
	generation uint64 // bumped on every mutation; part of walk cache keys
}

// document is the on-disk node-link serialization.
type document struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Nodes      []*schema.Node `json:"nodes"`
	Links      []*schema.Edge `json:"links"`
}

// NewStore opens (or initializes) the graph at cfg.Path.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("graph")

	idx, err := NewIndex(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create label index: %w", err)
	}

	wc, err := cache.NewWalkCache(cfg.WalkCacheSize, cfg.WalkCacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create walk cache: %w", err)
	}

	s := &Store{
		config:    cfg,
		logger:    logger,
		nodes:     make(map[string]*schema.Node),
		out:       make(map[string][]int),
		in:        make(map[string][]int),
		index:     idx,
		walkCache: wc,
	}
	s.load()
	return s, nil
}

// load reads the document at the configured path. Failures degrade to an
// empty graph; the store must always come up.
func (s *Store) load() {
	data, err := os.ReadFile(s.config.Path)
	if os.IsNotExist(err) {
		s.logger.Info("no existing graph, starting fresh",
			zap.String("path", s.config.Path))
		return
	}
	if err != nil {
		s.logger.Warn("failed to read graph file, starting empty",
			zap.String("path", s.config.Path), zap.Error(err))
		return
	}

	var doc document
	if err := jsonx.Unmarshal(data, &doc); err != nil {
		quarantine := s.config.Path + ".corrupt"
		if renameErr := os.Rename(s.config.Path, quarantine); renameErr == nil {
			s.logger.Warn("corrupt graph file quarantined, starting empty",
				zap.String("path", s.config.Path),
				zap.String("quarantine", quarantine),
				zap.Error(err))
		} else {
			s.logger.Warn("corrupt graph file, starting empty",
				zap.String("path", s.config.Path), zap.Error(err))
		}
		return
	}

	for _, n := range doc.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		s.insertNode(n)
	}
	for _, e := range doc.Links {
		if e == nil {
			continue
		}
		s.insertEdge(e)
	}

	s.logger.Info("graph loaded",
		zap.String("path", s.config.Path),
		zap.Int("nodes", len(s.nodes)),
		zap.Int("edges", len(s.edges)))
}

// Save rewrites the whole document atomically.
func (s *Store) Save() error {
	doc := document{
		Directed:   true,
		Multigraph: true,
		Nodes:      make([]*schema.Node, 0, len(s.order)),
		Links:      s.edges,
	}
	for _, id := range s.order {
		doc.Nodes = append(doc.Nodes, s.nodes[id])
	}

	data, err := jsonx.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp graph file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp graph file: %w", err)
	}
	if err := os.Rename(tmpName, s.config.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace graph file: %w", err)
	}
	return nil
}

// insertNode places a node into the in-memory index without persisting.
func (s *Store) insertNode(n *schema.Node) {
	if _, exists := s.nodes[n.ID]; !exists {
		s.order = append(s.order, n.ID)
	}
	s.nodes[n.ID] = n
	s.index.IndexNode(n)
}

func (s *Store) insertEdge(e *schema.Edge) {
	idx := len(s.edges)
	s.edges = append(s.edges, e)
	s.out[e.SourceID] = append(s.out[e.SourceID], idx)
	s.in[e.TargetID] = append(s.in[e.TargetID], idx)
}

// AddNode inserts n and persists the graph. A duplicate id overwrites the
// existing node (last write wins).
func (s *Store) AddNode(n schema.Node) error {
	if _, exists := s.nodes[n.ID]; exists {
		s.logger.Debug("node overwritten", zap.String("id", n.ID))
	}
	node := n
	s.insertNode(&node)
	s.generation++
	return s.Save()
}

// AddEdge inserts e and persists the graph. Both endpoints must already
// exist; ErrDanglingEdge is returned otherwise and nothing is written.
func (s *Store) AddEdge(e schema.Edge) error {
	if _, ok := s.nodes[e.SourceID]; !ok {
		return fmt.Errorf("%w: source %s", ErrDanglingEdge, e.SourceID)
	}
	if _, ok := s.nodes[e.TargetID]; !ok {
		return fmt.Errorf("%w: target %s", ErrDanglingEdge, e.TargetID)
	}
	edge := e
	if edge.TransactionTime.IsZero() {
		edge.TransactionTime = time.Now()
	}
	s.insertEdge(&edge)
	s.generation++
	return s.Save()
}

// GetNode returns the node with the given id, or nil.
func (s *Store) GetNode(id string) *schema.Node {
	return s.nodes[id]
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return len(s.edges) }

// FindNodesByType returns all nodes with the given type tag, in insertion
// order.
func (s *Store) FindNodesByType(t schema.NodeType) []*schema.Node {
	var results []*schema.Node
	for _, id := range s.order {
		if n := s.nodes[id]; n.Type == t {
			results = append(results, n)
		}
	}
	return results
}

// FindNodesByProperty returns nodes whose named property exactly matches
// value. Known typed fields are matched by their JSON name; anything else
// falls through to the Ext map.
func (s *Store) FindNodesByProperty(key string, value interface{}) []*schema.Node {
	var results []*schema.Node
	for _, id := range s.order {
		n := s.nodes[id]
		if v, ok := propertyOf(n, key); ok && v == value {
			results = append(results, n)
		}
	}
	return results
}

func propertyOf(n *schema.Node, key string) (interface{}, bool) {
	switch key {
	case "id":
		return n.ID, true
	case "type":
		return string(n.Type), true
	case "name":
		return n.Name, true
	case "text":
		return n.Text, true
	case "description":
		return n.Description, true
	case "label":
		return n.Label, true
	case "location":
		return n.Location, true
	case "session_id":
		return n.SessionID, true
	case "sequence_number":
		return n.SequenceNumber, true
	case "intensity":
		return n.Intensity, true
	case "confidence":
		return n.Confidence, true
	case "valence":
		return n.Valence, true
	case "is_core":
		return n.IsCore, true
	case "distortion_type":
		return n.DistortionType, true
	case "definition":
		return n.Definition, true
	case "thread_status":
		return n.ThreadStatus, true
	case "goal":
		return n.Goal, true
	case "birth_year":
		return n.BirthYear, true
	}
	if n.Ext != nil {
		if v, ok := n.Ext[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// FindNodesByText returns nodes whose display label field contains query,
// case-insensitively. Only the first present field among text,
// description, label, name is checked; nodes with no text-bearing field
// never match.
func (s *Store) FindNodesByText(query string) []*schema.Node {
	term := strings.ToLower(query)
	var results []*schema.Node
	for _, id := range s.order {
		n := s.nodes[id]
		content := firstTextField(n)
		if content == "" {
			continue
		}
		if strings.Contains(strings.ToLower(content), term) {
			results = append(results, n)
		}
	}
	return results
}

// firstTextField is DisplayLabel without the "Unknown" placeholder: text
// search must not match nodes that have no text-bearing field at all.
func firstTextField(n *schema.Node) string {
	switch {
	case n.Text != "":
		return n.Text
	case n.Description != "":
		return n.Description
	case n.Label != "":
		return n.Label
	case n.Name != "":
		return n.Name
	}
	return ""
}

// Neighbors returns the adjacency of the node in the given direction.
func (s *Store) Neighbors(id string, dir Direction) []Neighbor {
	var results []Neighbor
	if _, ok := s.nodes[id]; !ok {
		return results
	}

	if dir == DirectionOutgoing || dir == DirectionBoth {
		for _, idx := range s.out[id] {
			e := s.edges[idx]
			if n, ok := s.nodes[e.TargetID]; ok {
				results = append(results, Neighbor{Node: n, Edge: e, Direction: DirectionOutgoing})
			}
		}
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		for _, idx := range s.in[id] {
			e := s.edges[idx]
			if n, ok := s.nodes[e.SourceID]; ok {
				results = append(results, Neighbor{Node: n, Edge: e, Direction: DirectionIncoming})
			}
		}
	}
	return results
}

// UserNode returns the first User node, or nil. The graph is expected to
// hold a single User node but this is not enforced.
func (s *Store) UserNode() *schema.Node {
	users := s.FindNodesByType(schema.NodeTypeUser)
	if len(users) > 0 {
		return users[0]
	}
	return nil
}

// SearchAnchors returns up to limit node ids ranked by label relevance to
// query, for seeding an ego walk. The bleve index provides ranking; when
// it has no hits (or the query is un-analyzable) the exact substring scan
// is the fallback.
func (s *Store) SearchAnchors(query string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	ids := s.index.Search(query, limit)
	if len(ids) == 0 {
		for _, n := range s.FindNodesByText(query) {
			ids = append(ids, n.ID)
			if len(ids) >= limit {
				break
			}
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// Close releases the store's index and cache resources.
func (s *Store) Close() error {
	s.walkCache.Close()
	return s.index.Close()
}
