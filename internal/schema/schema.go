// Package schema defines the node and edge model for the reflection graph.
// All node variants share one envelope (id, type tag, timestamps); variant
// payloads are optional fields on the same struct so the node-link JSON
// document stays flat. Constructors are the creation boundary: every
// variant the extraction model can emit has one, and the type tag is never
// changed after construction.
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeType is the type tag of a graph node.
type NodeType string

const (
	NodeTypeUser          NodeType = "User"
	NodeTypeBelief        NodeType = "Belief"
	NodeTypeEvent         NodeType = "Event"
	NodeTypeEmotion       NodeType = "Emotion"
	NodeTypePerson        NodeType = "Person"
	NodeTypeTopic         NodeType = "Topic"
	NodeTypeUtterance     NodeType = "Utterance"
	NodeTypeReflection    NodeType = "Reflection"
	NodeTypeDistortion    NodeType = "Distortion"
	NodeTypeInquiryThread NodeType = "InquiryThread"
)

// EdgeType is the relationship type between nodes.
type EdgeType string

const (
	EdgeTypeExperienced   EdgeType = "EXPERIENCED"    // User -> Event
	EdgeTypeHasBelief     EdgeType = "HAS_BELIEF"     // User -> Belief
	EdgeTypeTriggered     EdgeType = "TRIGGERED"      // Event/Person -> Emotion
	EdgeTypeInterpretedAs EdgeType = "INTERPRETED_AS" // Event -> Belief
	EdgeTypeReinforces    EdgeType = "REINFORCES"     // Event -> Belief
	EdgeTypeContradicts   EdgeType = "CONTRADICTS"    // Event -> Belief
	EdgeTypeEvolvedFrom   EdgeType = "EVOLVED_FROM"   // Belief -> Belief
	EdgeTypeSuppresses    EdgeType = "SUPPRESSES"     // Belief -> Emotion
	EdgeTypeExpressedIn   EdgeType = "EXPRESSED_IN"   // Belief -> Utterance
	EdgeTypeFocusedOn     EdgeType = "FOCUSED_ON"     // InquiryThread -> Topic
	EdgeTypePrecedes      EdgeType = "PRECEDES"       // Event -> Event
	EdgeTypeMentions      EdgeType = "MENTIONS"       // Utterance -> Topic/Person/Event
)

var edgeTypes = map[EdgeType]bool{
	EdgeTypeExperienced:   true,
	EdgeTypeHasBelief:     true,
	EdgeTypeTriggered:     true,
	EdgeTypeInterpretedAs: true,
	EdgeTypeReinforces:    true,
	EdgeTypeContradicts:   true,
	EdgeTypeEvolvedFrom:   true,
	EdgeTypeSuppresses:    true,
	EdgeTypeExpressedIn:   true,
	EdgeTypeFocusedOn:     true,
	EdgeTypePrecedes:      true,
	EdgeTypeMentions:      true,
}

// CausalEdges are expanded first during traversal so a depth bound cuts
// the incidental subgraph before the causal one.
var CausalEdges = map[EdgeType]bool{
	EdgeTypeTriggered:     true,
	EdgeTypeReinforces:    true,
	EdgeTypeContradicts:   true,
	EdgeTypeInterpretedAs: true,
	EdgeTypeEvolvedFrom:   true,
	EdgeTypeSuppresses:    true,
}

// ParseEdgeType validates an edge type string from an extraction payload.
func ParseEdgeType(s string) (EdgeType, error) {
	et := EdgeType(s)
	if !edgeTypes[et] {
		return "", fmt.Errorf("unknown edge type %q", s)
	}
	return et, nil
}

// Node is a graph node: the shared envelope plus the payload fields of its
// variant. Only the fields belonging to Type are set; everything else is
// zero and omitted from JSON.
type Node struct {
	ID             string    `json:"id"`
	Type           NodeType  `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
	ValidTimeStart string    `json:"valid_time_start,omitempty"`
	ValidTimeEnd   string    `json:"valid_time_end,omitempty"`

	// User / Person / Topic
	Name      string   `json:"name,omitempty"`
	BirthYear int      `json:"birth_year,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`

	// Belief / Utterance
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Valence    float64 `json:"valence,omitempty"`
	IsCore     bool    `json:"is_core,omitempty"`

	// Event
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	// Emotion
	Label     string `json:"label,omitempty"`
	Intensity int    `json:"intensity,omitempty"`

	// Utterance
	SessionID      string `json:"session_id,omitempty"`
	SequenceNumber int    `json:"sequence_number,omitempty"`

	// Distortion
	DistortionType string `json:"distortion_type,omitempty"`
	Definition     string `json:"definition,omitempty"`

	// InquiryThread
	ThreadStatus string `json:"thread_status,omitempty"`
	Goal         string `json:"goal,omitempty"`

	// Ext holds ad hoc extension properties separate from the typed
	// fields above. String values only; schema drift stays out of the
	// core fields.
	Ext map[string]string `json:"ext,omitempty"`
}

// DisplayLabel resolves the human-readable label of the node: the first
// present field among text, description, label, name.
func (n *Node) DisplayLabel() string {
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
	return "Unknown"
}

func newNode(t NodeType) Node {
	return Node{
		ID:        uuid.NewString(),
		Type:      t,
		CreatedAt: time.Now(),
	}
}

// NewUserNode creates the journal owner node.
func NewUserNode(name string, birthYear int) Node {
	n := newNode(NodeTypeUser)
	n.Name = name
	n.BirthYear = birthYear
	return n
}

// NewBeliefNode creates a Belief node. Confidence is in [0,1], valence in
// [-1,1]; out-of-range model output is clamped rather than rejected.
func NewBeliefNode(text string, confidence, valence float64, isCore bool) Node {
	n := newNode(NodeTypeBelief)
	n.Text = text
	n.Confidence = clampFloat(confidence, 0, 1)
	n.Valence = clampFloat(valence, -1, 1)
	n.IsCore = isCore
	return n
}

// NewEventNode creates an Event node.
func NewEventNode(description, location string) Node {
	n := newNode(NodeTypeEvent)
	n.Description = description
	n.Location = location
	return n
}

// NewEmotionNode creates an Emotion node. Intensity is clamped to [1,10].
func NewEmotionNode(label string, intensity int) Node {
	n := newNode(NodeTypeEmotion)
	n.Label = label
	n.Intensity = clampInt(intensity, 1, 10)
	return n
}

// NewPersonNode creates a Person node.
func NewPersonNode(name string) Node {
	n := newNode(NodeTypePerson)
	n.Name = name
	return n
}

// NewTopicNode creates a Topic node.
func NewTopicNode(name string, keywords []string) Node {
	n := newNode(NodeTypeTopic)
	n.Name = name
	n.Keywords = keywords
	return n
}

// NewUtteranceNode creates an Utterance node tied to a session transcript.
func NewUtteranceNode(text, sessionID string, sequence int) Node {
	n := newNode(NodeTypeUtterance)
	n.Text = text
	n.SessionID = sessionID
	n.SequenceNumber = sequence
	return n
}

// NewReflectionNode creates a Reflection node.
func NewReflectionNode(text, sessionID string) Node {
	n := newNode(NodeTypeReflection)
	n.Text = text
	n.SessionID = sessionID
	return n
}

// NewDistortionNode creates a cognitive Distortion node.
func NewDistortionNode(distortionType, definition string) Node {
	n := newNode(NodeTypeDistortion)
	n.DistortionType = distortionType
	n.Definition = definition
	return n
}

// NewInquiryThreadNode creates an InquiryThread node.
func NewInquiryThreadNode(goal, status string) Node {
	n := newNode(NodeTypeInquiryThread)
	if status == "" {
		status = "Active"
	}
	n.Goal = goal
	n.ThreadStatus = status
	return n
}

// Edge is a directed relationship between two nodes. Multi-edges between
// the same pair are allowed.
type Edge struct {
	SourceID        string    `json:"source"`
	TargetID        string    `json:"target"`
	Type            EdgeType  `json:"type"`
	Weight          float64   `json:"weight"`
	TransactionTime time.Time `json:"transaction_time"`

	Ext map[string]string `json:"ext,omitempty"`
}

// NewEdge creates an edge with weight 1 and the current transaction time.
func NewEdge(sourceID, targetID string, t EdgeType) Edge {
	return Edge{
		SourceID:        sourceID,
		TargetID:        targetID,
		Type:            t,
		Weight:          1.0,
		TransactionTime: time.Now(),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
