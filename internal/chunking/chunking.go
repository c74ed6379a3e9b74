// Package chunking splits extracted document text into retrieval-sized
// chunks. Two strategies are provided: a recursive character splitter with
// overlap, and a semantic splitter that cuts at embedding-distance
// breakpoints.
package chunking

import (
	"context"
	"fmt"
)

// Chunk is a single piece of a source document.
type Chunk struct {
	Source        string `json:"source"`
	Text          string `json:"text"`
	LenCharacters int    `json:"len_characters"`
}

// Item is one document to be chunked.
type Item struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Request carries the documents for one chunking pass.
type Request struct {
	Items []Item `json:"items"`
}

// Response carries the produced chunks, in document order.
type Response struct {
	Chunks []Chunk `json:"chunks"`
}

// Chunker splits documents into chunks.
type Chunker interface {
	Name() string
	Chunk(ctx context.Context, req Request) (Response, error)
}

// Pipeline type names accepted by the ingestion API.
const (
	PipelineRecursiveOverlap = "recursive_overlap"
	PipelineSemantic         = "semantic"
)

// Registry maps pipeline type names to chunkers.
type Registry struct {
	chunkers map[string]Chunker
}

func NewRegistry() *Registry {
	return &Registry{chunkers: make(map[string]Chunker)}
}

// Register adds a chunker under its pipeline type name.
func (r *Registry) Register(pipelineType string, c Chunker) {
	r.chunkers[pipelineType] = c
}

// Get returns the chunker for the given pipeline type.
func (r *Registry) Get(pipelineType string) (Chunker, error) {
	c, ok := r.chunkers[pipelineType]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline type %q", pipelineType)
	}
	return c, nil
}

// Types returns the registered pipeline type names.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.chunkers))
	for name := range r.chunkers {
		out = append(out, name)
	}
	return out
}
