// Package ingest turns a full session transcript into graph mutations.
// Entity and relationship extraction is delegated entirely to the
// language model; this package owns the payload contract, validation,
// and the mapping into schema constructors.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/graph"
	"github.com/reflective-journal-kernel/internal/jsonx"
	"github.com/reflective-journal-kernel/internal/schema"
)

// ExtractionSystemPrompt instructs the model to extract the session's
// psychological entities and relationships as a structured payload.
const ExtractionSystemPrompt = `You are an expert Graph Database Architect and Psychoanalyst.
Your goal is to extract structured knowledge from a FULL CONVERSATION TRANSCRIPT to build a "Psyche Graph".

Input: A full dialogue between a User and a Coach.

Instructions:
1. Analyze the ENTIRE conversation as a whole.
2. Filter out:
   - Small talk ("Hello", "Thanks").
   - Transient thoughts that were immediately corrected or discarded.
   - Questions asked by the Coach (unless they reveal a specific User belief).
3. Extract SIGNIFICANT psychological entities (Nodes) and relationships (Edges).
   - Focus on recurring themes, core beliefs, strong emotions, and significant life events.
4. Detect Cognitive Distortions (e.g., "I always fail" -> All-or-Nothing).
5. Output ONLY valid JSON.

Schema Definitions:
- Nodes: User, Belief (Rules/Core Beliefs), Event (Episodes), Emotion, Person, Topic, Distortion (Cognitive Errors).
- Edges: EXPERIENCED, HAS_BELIEF, TRIGGERED (Event->Emotion), INTERPRETED_AS (Event->Belief), CONTRADICTS, REINFORCES, EVOLVED_FROM.

JSON Format:
{
  "nodes": [
    {"type": "Belief", "text": "I am not good enough", "valence": -0.8, "confidence": 0.9},
    {"type": "Event", "description": "Failed math test", "valid_time_start": "2023-05-01"},
    {"type": "Emotion", "label": "Shame", "intensity": 8}
  ],
  "edges": [
    {"source_index": 1, "target_index": 2, "type": "TRIGGERED"},
    {"source_index": 1, "target_index": 0, "type": "REINFORCES"}
  ]
}
Use "source_index" and "target_index" to refer to the position in the "nodes" array (0-indexed).`

// Extractor is the structured-output model call the pipeline depends on.
type Extractor interface {
	ExtractJSON(ctx context.Context, systemPrompt, text string) ([]byte, error)
}

// Payload is the extraction contract: nodes plus edges referencing them
// by position in the nodes array.
type Payload struct {
	Nodes []PayloadNode `json:"nodes"`
	Edges []PayloadEdge `json:"edges"`
}

// PayloadNode is one extracted node before mapping to the schema. Fields
// beyond the type tag are variant-specific; absent numeric fields take
// the variant defaults (confidence 1, intensity 5).
type PayloadNode struct {
	Type           string   `json:"type"`
	Text           string   `json:"text"`
	Description    string   `json:"description"`
	Label          string   `json:"label"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	ValidTimeStart string   `json:"valid_time_start"`
	Confidence     *float64 `json:"confidence"`
	Valence        float64  `json:"valence"`
	IsCore         bool     `json:"is_core"`
	Intensity      *int     `json:"intensity"`
	Keywords       []string `json:"keywords"`
	DistortionType string   `json:"distortion_type"`
	Definition     string   `json:"definition"`
}

// PayloadEdge references positions in the payload's nodes array.
type PayloadEdge struct {
	SourceIndex *int   `json:"source_index"`
	TargetIndex *int   `json:"target_index"`
	Type        string `json:"type"`
}

// Result summarizes one ingestion.
type Result struct {
	NodesAdded   int
	EdgesAdded   int
	SkippedNodes int
	SkippedEdges int
}

// Pipeline feeds extraction payloads into the graph store.
type Pipeline struct {
	graph     *graph.Store
	extractor Extractor
	logger    *zap.Logger
}

// New creates an ingestion pipeline.
func New(g *graph.Store, extractor Extractor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		graph:     g,
		extractor: extractor,
		logger:    logger.Named("ingest"),
	}
}

// ProcessSession extracts a transcript and applies the payload to the
// graph. A failed or malformed extraction aborts before any node is
// written; the session's graph simply does not grow.
func (p *Pipeline) ProcessSession(ctx context.Context, transcript, sessionID string) (*Result, error) {
	p.logger.Info("ingesting session",
		zap.String("session_id", sessionID),
		zap.Int("chars", len(transcript)))

	raw, err := p.extractor.ExtractJSON(ctx, ExtractionSystemPrompt, transcript)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	var payload Payload
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}

	result, err := p.Apply(&payload)
	if err != nil {
		return nil, err
	}

	p.logger.Info("ingestion complete",
		zap.String("session_id", sessionID),
		zap.Int("nodes", result.NodesAdded),
		zap.Int("edges", result.EdgesAdded))
	return result, nil
}

// Apply maps a decoded payload into the graph. Unknown node types and
// unknown or out-of-range edges are skipped with a warning; everything
// valid is written.
func (p *Pipeline) Apply(payload *Payload) (*Result, error) {
	result := &Result{}

	// Build every node up front so edge indices resolve against the
	// payload positions, including skipped slots.
	built := make([]*schema.Node, len(payload.Nodes))
	for i, pn := range payload.Nodes {
		node, ok := p.buildNode(pn)
		if !ok {
			result.SkippedNodes++
			continue
		}
		built[i] = node
	}

	for _, node := range built {
		if node == nil {
			continue
		}
		if err := p.graph.AddNode(*node); err != nil {
			return result, fmt.Errorf("failed to add node: %w", err)
		}
		result.NodesAdded++
	}

	for _, pe := range payload.Edges {
		edgeType, err := schema.ParseEdgeType(pe.Type)
		if err != nil {
			p.logger.Warn("skipping edge with unknown type", zap.String("type", pe.Type))
			result.SkippedEdges++
			continue
		}
		if pe.SourceIndex == nil || pe.TargetIndex == nil {
			p.logger.Warn("skipping edge with missing endpoint index")
			result.SkippedEdges++
			continue
		}
		src, tgt := *pe.SourceIndex, *pe.TargetIndex
		if src < 0 || src >= len(built) || tgt < 0 || tgt >= len(built) ||
			built[src] == nil || built[tgt] == nil {
			p.logger.Warn("skipping edge with unresolvable endpoints",
				zap.Int("source_index", src), zap.Int("target_index", tgt))
			result.SkippedEdges++
			continue
		}

		edge := schema.NewEdge(built[src].ID, built[tgt].ID, edgeType)
		if err := p.graph.AddEdge(edge); err != nil {
			return result, fmt.Errorf("failed to add edge: %w", err)
		}
		result.EdgesAdded++
	}

	return result, nil
}

func (p *Pipeline) buildNode(pn PayloadNode) (*schema.Node, bool) {
	confidence := 1.0
	if pn.Confidence != nil {
		confidence = *pn.Confidence
	}
	intensity := 5
	if pn.Intensity != nil {
		intensity = *pn.Intensity
	}

	var node schema.Node
	switch schema.NodeType(pn.Type) {
	case schema.NodeTypeBelief:
		node = schema.NewBeliefNode(pn.Text, confidence, pn.Valence, pn.IsCore)
	case schema.NodeTypeEvent:
		node = schema.NewEventNode(pn.Description, pn.Location)
		node.ValidTimeStart = pn.ValidTimeStart
	case schema.NodeTypeEmotion:
		node = schema.NewEmotionNode(pn.Label, intensity)
	case schema.NodeTypeTopic:
		node = schema.NewTopicNode(pn.Name, pn.Keywords)
	case schema.NodeTypePerson:
		node = schema.NewPersonNode(pn.Name)
	case schema.NodeTypeDistortion:
		node = schema.NewDistortionNode(pn.DistortionType, pn.Definition)
	default:
		p.logger.Warn("skipping node with unknown type", zap.String("type", pn.Type))
		return nil, false
	}
	return &node, true
}
