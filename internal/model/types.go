package model

// Document is the text of a single PDF page.
type Document struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// Chunk is a bounded window of a Document's text.
type Chunk struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// Metadata returns the payload stored next to the chunk's vector.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		"source": c.Source,
		"page":   c.Page,
	}
}

// Entry is a (vector, text, metadata) triple held by a vector index.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Match is an index entry returned by a similarity query.
type Match struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Source returns the "source" metadata value, if any.
func (m Match) Source() string {
	s, _ := m.Metadata["source"].(string)
	return s
}

// Answer is the result of one chat turn.
type Answer struct {
	Query   string  `json:"query"`
	Text    string  `json:"answer"`
	Sources []Match `json:"sources,omitempty"`
}

// IndexSpec describes a named vector index.
type IndexSpec struct {
	Name      string `json:"name" yaml:"name"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	Metric    string `json:"metric" yaml:"metric"`
	Cloud     string `json:"cloud" yaml:"cloud"`
	Region    string `json:"region" yaml:"region"`
}

// MetricCosine is the only similarity metric the stores implement.
const MetricCosine = "cosine"
