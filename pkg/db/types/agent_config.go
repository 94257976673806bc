package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AgentConfig is the inference configuration stored as jsonb on agents.
type AgentConfig struct {
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Model        string  `json:"model"`
}

func (c *AgentConfig) Scan(src any) error {
	if src == nil {
		*c = AgentConfig{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	default:
		return fmt.Errorf("AgentConfig: unsupported Scan type %T", src)
	}
}

func (c AgentConfig) Value() (driver.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("AgentConfig: marshal: %w", err)
	}
	return string(raw), nil
}
