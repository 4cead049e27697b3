package config

import (
	"time"

	"github.com/kadirpekel/analystd/pkg/domain"
)

// Config is the fully resolved process configuration, loaded once at
// startup from the environment (spec.md §6.4).
type Config struct {
	AgentMode domain.Mode

	ModelPrimary   string
	ModelSecondary string

	LLMBaseURLResponses string
	LLMAPIVersion       string

	DocSearchEndpoint string
	DocKnowledgeBase  string
	DocDefaultEffort  domain.ReasoningEffort

	WebConnectionName string
	ProjectEndpoint   string

	RPCAnalyticsURL string
	RPCEnabled      bool

	DemoMode        bool
	HistoryEnabled  bool
	KeepaliveInterval time.Duration

	SQL     *DatabaseConfig // nil when the SQL tool is not configured
	History *DatabaseConfig
}

// Load reads process configuration per spec.md §6.4. It does not validate
// cross-field requirements (e.g. "SQL tool needs SQL_SERVER or
// SQL_CONNECTION_STRING") — that belongs to whichever component actually
// needs the value, so a deployment that never uses the SQL tool doesn't
// need to set SQL env vars at all.
func Load() *Config {
	sqlCfg, _ := SQLDatabaseConfigFromEnv()

	cfg := &Config{
		AgentMode:           domain.Mode(getString("AGENT_MODE", string(domain.ModeMultiTool))),
		ModelPrimary:        getString("MODEL_PRIMARY", ""),
		ModelSecondary:      getString("MODEL_SECONDARY", ""),
		LLMBaseURLResponses: getString("LLM_BASE_URL_RESPONSES", ""),
		LLMAPIVersion:       getString("LLM_API_VERSION", ""),
		DocSearchEndpoint:   getString("DOC_SEARCH_ENDPOINT", ""),
		DocKnowledgeBase:    getString("DOC_KNOWLEDGE_BASE", ""),
		DocDefaultEffort:    domain.ReasoningEffort(getString("DOC_DEFAULT_EFFORT", string(domain.EffortMedium))),
		WebConnectionName:   getString("WEB_CONNECTION_NAME", ""),
		ProjectEndpoint:     getString("PROJECT_ENDPOINT", ""),
		RPCAnalyticsURL:     getString("RPC_ANALYTICS_URL", ""),
		RPCEnabled:          getBool("RPC_ENABLED", false),
		DemoMode:            getBool("DEMO_MODE", false),
		HistoryEnabled:      getBool("HISTORY_ENABLED", true),
		KeepaliveInterval:   time.Duration(getInt("KEEPALIVE_INTERVAL_SECONDS", 15)) * time.Second,
		SQL:                 sqlCfg,
	}
	if cfg.HistoryEnabled {
		cfg.History = HistoryDatabaseConfigFromEnv()
	}
	return cfg
}

// UsesResponsesClient reports whether the LLM Client Abstraction should
// construct the Responses-style client rather than the Chat-Completions
// client (spec.md §4.5 selection rule).
func (c *Config) UsesResponsesClient() bool {
	return c.LLMBaseURLResponses != ""
}
