package domain

// Vector is one embedding plus its retrieval metadata, keyed by log id.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// VectorMatch is a similarity-query hit. Metadata carries whatever was
// stored at upsert time; consumers must tolerate missing fields.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]any
}
