// Package mappings defines the index body for document indices.
package mappings

import "encoding/json"

// Vector field defaults. The shape mirrors the HNSW graph the search API was tuned for.
const (
	VectorField        = "image_vector"
	VectorType         = "dense_vector"
	VectorDimensions   = 1024
	VectorSimilarity   = "cosine"
	hnswM              = 16
	hnswEfConstruction = 256
	defaultShards      = 2
	defaultReplicas    = 1
	defaultRefresh     = "5s"
	bulkLoadRefresh    = "-1"
	bulkLoadReplicas   = 0
)

// Property is one field mapping.
type Property struct {
	Type         string              `json:"type,omitempty"`
	Fields       map[string]Property `json:"fields,omitempty"`
	Enabled      *bool               `json:"enabled,omitempty"`
	Dims         int                 `json:"dims,omitempty"`
	Index        *bool               `json:"index,omitempty"`
	Similarity   string              `json:"similarity,omitempty"`
	IndexOptions *VectorIndexOptions `json:"index_options,omitempty"`
}

// VectorIndexOptions configures the HNSW graph of a dense_vector field.
type VectorIndexOptions struct {
	Type           string `json:"type"`
	M              int    `json:"m"`
	EfConstruction int    `json:"ef_construction"`
}

// Settings holds index-level settings.
type Settings struct {
	NumberOfShards   int    `json:"number_of_shards"`
	NumberOfReplicas int    `json:"number_of_replicas"`
	RefreshInterval  string `json:"refresh_interval"`
}

// IndexBody is the create-index request body.
type IndexBody struct {
	Settings struct {
		Index Settings `json:"index"`
	} `json:"settings"`
	Mappings struct {
		Properties map[string]Property `json:"properties"`
	} `json:"mappings"`
}

func ptr[T any](v T) *T { return &v }

func keywordText() Property {
	return Property{Type: "text", Fields: map[string]Property{"keyword": {Type: "keyword"}}}
}

// DocumentProperties returns the field mappings for processed documents.
func DocumentProperties() map[string]Property {
	return map[string]Property{
		"file_key":      {Type: "keyword"},
		"file_name":     keywordText(),
		"file_path":     keywordText(),
		"file_type":     {Type: "keyword"},
		"mime_type":     {Type: "keyword"},
		"file_size":     {Type: "long"},
		"bucket":        {Type: "keyword"},
		"thumbnail_url": {Type: "keyword", Index: ptr(false)},

		"extracted_text": {Type: "text"},
		"page_count":     {Type: "integer"},
		"word_count":     {Type: "integer"},
		"char_count":     {Type: "integer"},
		"metadata":       {Type: "object", Enabled: ptr(true)},

		"processor_name":          {Type: "keyword"},
		"processor_version":       {Type: "keyword"},
		"processing_time_seconds": {Type: "float"},
		"processed_at":            {Type: "date"},
		"indexed_at":              {Type: "date"},
		"ocr_confidence":          {Type: "float"},
		"ocr_language":            {Type: "keyword"},
		"success":                 {Type: "boolean"},
		"error_message":           {Type: "text"},

		VectorField: {
			Type:       VectorType,
			Dims:       VectorDimensions,
			Index:      ptr(true),
			Similarity: VectorSimilarity,
			IndexOptions: &VectorIndexOptions{
				Type:           "hnsw",
				M:              hnswM,
				EfConstruction: hnswEfConstruction,
			},
		},
	}
}

// DocumentIndex returns the body for a new document index. With bulkLoad set,
// replicas and refresh are disabled so a reindex can write at full speed.
func DocumentIndex(bulkLoad bool) IndexBody {
	var body IndexBody
	body.Settings.Index = Settings{
		NumberOfShards:   defaultShards,
		NumberOfReplicas: defaultReplicas,
		RefreshInterval:  defaultRefresh,
	}
	if bulkLoad {
		body.Settings.Index.NumberOfReplicas = bulkLoadReplicas
		body.Settings.Index.RefreshInterval = bulkLoadRefresh
	}
	body.Mappings.Properties = DocumentProperties()
	return body
}

// ProductionSettings are the dynamic settings restored after a bulk load.
func ProductionSettings() map[string]any {
	return map[string]any{
		"number_of_replicas": defaultReplicas,
		"refresh_interval":   defaultRefresh,
	}
}

// ToMap converts a mapping to a map[string]any for Elasticsearch
func ToMap(mapping any) (map[string]any, error) {
	data, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
