package graph

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/schema"
)

// Index is an in-memory bleve index over node display labels, used for
// ranked anchor selection. It is rebuilt from the store on startup and
// updated on every node insert; it is never persisted (the JSON document
// is the single source of truth).
type Index struct {
	index  bleve.Index
	logger *zap.Logger
}

// labelDoc is the indexed projection of a node.
type labelDoc struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// NewIndex creates an empty in-memory label index.
func NewIndex(logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	labelField := bleve.NewTextFieldMapping()
	labelField.Store = false
	doc.AddFieldMappingsAt("label", labelField)

	typeField := bleve.NewKeywordFieldMapping()
	typeField.Store = false
	doc.AddFieldMappingsAt("type", typeField)

	mapping.DefaultMapping = doc

	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Index{index: idx, logger: logger.Named("labelindex")}, nil
}

// IndexNode indexes (or re-indexes) a node's label. Nodes with no
// text-bearing field are skipped; they can never be anchors.
func (ix *Index) IndexNode(n *schema.Node) {
	label := firstTextField(n)
	if label == "" {
		return
	}
	err := ix.index.Index(n.ID, labelDoc{Label: label, Type: string(n.Type)})
	if err != nil {
		ix.logger.Warn("failed to index node label",
			zap.String("id", n.ID), zap.Error(err))
	}
}

// Search returns up to limit node ids ranked by relevance to query.
func (ix *Index) Search(query string, limit int) []string {
	if query == "" || limit <= 0 {
		return nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("label")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit

	res, err := ix.index.Search(req)
	if err != nil {
		ix.logger.Warn("label search failed",
			zap.String("query", query), zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
