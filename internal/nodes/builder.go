// Package nodes turns chunks into vector-store points with stable links back
// to their parent documents.
package nodes

import (
	"github.com/google/uuid"

	"github.com/saga-labs/lexrag/internal/chunking"
)

// Node is one chunk prepared for embedding and upsert.
type Node struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Text     string
	Metadata Metadata
}

// Metadata describes the chunk's position within its source document.
type Metadata struct {
	Source        string
	ChunkIndex    int
	LenCharacters int
}

// ParentDocument is the full text of one ingested source.
type ParentDocument struct {
	ID     uuid.UUID
	Source string
	Text   string
}

// Build creates leaf nodes from chunks and one parent document per distinct
// source that has text in parentTexts. Every node gets a fresh UUID; nodes
// from the same source share a parent ID. ChunkIndex numbers chunks across
// the whole batch, in input order.
func Build(chunks []chunking.Chunk, parentTexts map[string]string) ([]Node, []ParentDocument) {
	sourceToParent := make(map[string]uuid.UUID)
	var parentOrder []string

	for _, chunk := range chunks {
		if _, seen := sourceToParent[chunk.Source]; !seen {
			sourceToParent[chunk.Source] = uuid.New()
			parentOrder = append(parentOrder, chunk.Source)
		}
	}

	var parents []ParentDocument
	for _, source := range parentOrder {
		text := parentTexts[source]
		if text == "" {
			continue
		}
		parents = append(parents, ParentDocument{
			ID:     sourceToParent[source],
			Source: source,
			Text:   text,
		})
	}

	nodes := make([]Node, 0, len(chunks))
	for idx, chunk := range chunks {
		nodes = append(nodes, Node{
			ID:       uuid.New(),
			ParentID: sourceToParent[chunk.Source],
			Text:     chunk.Text,
			Metadata: Metadata{
				Source:        chunk.Source,
				ChunkIndex:    idx,
				LenCharacters: chunk.LenCharacters,
			},
		})
	}

	return nodes, parents
}

// Payload returns the vector-store payload for a node.
func (n Node) Payload() map[string]interface{} {
	return map[string]interface{}{
		"text":           n.Text,
		"source":         n.Metadata.Source,
		"chunk_index":    n.Metadata.ChunkIndex,
		"len_characters": n.Metadata.LenCharacters,
		"parent_id":      n.ParentID.String(),
	}
}
