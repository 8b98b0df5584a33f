package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jack-wz/utest/internal/apperr"
)

// Extraction strategies understood by the datasource node.
const (
	StrategyAuto    = "auto"
	StrategyHiRes   = "hi_res"
	StrategyFast    = "fast"
	StrategyOCROnly = "ocr_only"
)

// Chunking strategies understood by the chunking node.
const (
	ChunkByTitle   = "by_title"
	ChunkByPage    = "by_page"
	ChunkFixedSize = "fixed_size"
)

const (
	DefaultChunkSize = 1000
	DefaultMinLength = 10
	DefaultProvider  = "openai"
)

// NodeConfig is the typed configuration of a known node type.
type NodeConfig interface {
	NodeType() NodeType
	validate() error
}

// MetadataOptions toggles the optional sub-metadata attached by the extractor.
type MetadataOptions struct {
	Font  bool `json:"font"`
	Table bool `json:"table"`
	Image bool `json:"image"`
}

type DataSourceConfig struct {
	SourceType string          `json:"source_type"`
	FilePath   string          `json:"file_path"`
	Filename   string          `json:"filename"`
	Strategy   string          `json:"strategy"`
	Metadata   MetadataOptions `json:"metadata"`
	// DemoMode replaces an unreadable source with a placeholder element.
	DemoMode bool `json:"demo_mode"`
}

func (DataSourceConfig) NodeType() NodeType { return NodeDataSource }

func (c DataSourceConfig) validate() error {
	switch c.Strategy {
	case StrategyAuto, StrategyHiRes, StrategyFast, StrategyOCROnly:
		return nil
	}
	return &apperr.ValidationError{Field: "strategy", Msg: fmt.Sprintf("unknown extraction strategy %q", c.Strategy)}
}

type CleaningConfig struct {
	MergeElements bool `json:"merge_elements"`
	MinLength     int  `json:"min_length"`
}

func (CleaningConfig) NodeType() NodeType { return NodeCleaning }

func (c CleaningConfig) validate() error {
	if c.MinLength < 0 {
		return &apperr.ValidationError{Field: "min_length", Msg: "must not be negative"}
	}
	return nil
}

type ChunkingConfig struct {
	Strategy     string `json:"strategy"`
	ChunkSize    int    `json:"chunk_size"`
	ContextMerge bool   `json:"context_merge"`
}

func (ChunkingConfig) NodeType() NodeType { return NodeChunking }

func (c ChunkingConfig) validate() error {
	switch c.Strategy {
	case ChunkByTitle, ChunkByPage, ChunkFixedSize:
	default:
		return &apperr.ValidationError{Field: "strategy", Msg: fmt.Sprintf("unknown chunking strategy %q", c.Strategy)}
	}
	if c.ChunkSize <= 0 {
		return &apperr.ValidationError{Field: "chunk_size", Msg: "must be positive"}
	}
	return nil
}

type EmbeddingConfig struct {
	Provider string `json:"provider"`
}

func (EmbeddingConfig) NodeType() NodeType { return NodeEmbedding }

func (c EmbeddingConfig) validate() error { return nil }

type ConnectorConfig struct {
	ConnectorType  string `json:"connector_type"`
	CollectionName string `json:"collection_name"`
}

func (ConnectorConfig) NodeType() NodeType { return NodeConnector }

func (c ConnectorConfig) validate() error {
	if strings.ContainsAny(c.CollectionName, " /\\") {
		return &apperr.ValidationError{Field: "collection_name", Msg: "must not contain spaces or slashes"}
	}
	return nil
}

// ParseConfig decodes the data bag of a known node type into its typed
// configuration and applies defaults. Unknown node types yield (nil, nil).
func ParseConfig(n Node) (NodeConfig, error) {
	var cfg NodeConfig
	switch n.Type {
	case NodeDataSource:
		c := DataSourceConfig{Strategy: StrategyAuto}
		if err := decode(n, &c); err != nil {
			return nil, err
		}
		if c.Strategy == "" {
			c.Strategy = StrategyAuto
		}
		cfg = c
	case NodeCleaning:
		c := CleaningConfig{MinLength: DefaultMinLength}
		if err := decode(n, &c); err != nil {
			return nil, err
		}
		if c.MinLength == 0 {
			c.MinLength = DefaultMinLength
		}
		cfg = c
	case NodeChunking:
		c := ChunkingConfig{Strategy: ChunkByTitle, ChunkSize: DefaultChunkSize}
		if err := decode(n, &c); err != nil {
			return nil, err
		}
		if c.Strategy == "" {
			c.Strategy = ChunkByTitle
		}
		if c.ChunkSize == 0 {
			c.ChunkSize = DefaultChunkSize
		}
		cfg = c
	case NodeEmbedding:
		c := EmbeddingConfig{Provider: DefaultProvider}
		if err := decode(n, &c); err != nil {
			return nil, err
		}
		if c.Provider == "" {
			c.Provider = DefaultProvider
		}
		cfg = c
	case NodeConnector:
		c := ConnectorConfig{ConnectorType: "memory"}
		if err := decode(n, &c); err != nil {
			return nil, err
		}
		if c.ConnectorType == "" {
			c.ConnectorType = "memory"
		}
		cfg = c
	default:
		return nil, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("node %q: %w", n.ID, err)
	}
	return cfg, nil
}

// decode round-trips the opaque data bag through JSON into a typed struct.
func decode(n Node, out any) error {
	if len(n.Data) == 0 {
		return nil
	}
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return &apperr.ValidationError{Field: n.ID, Msg: fmt.Sprintf("unencodable configuration: %v", err)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.ValidationError{Field: n.ID, Msg: fmt.Sprintf("invalid %s configuration: %v", n.Type, err)}
	}
	return nil
}
