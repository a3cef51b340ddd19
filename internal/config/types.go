package config

// Config is the root configuration for crewdesk.
type Config struct {
	Assistant AssistantConfig `yaml:"assistant,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Calls     CallsConfig     `yaml:"calls,omitempty"`
}

// AssistantConfig holds the agent tool settings.
type AssistantConfig struct {
	// Profiles are user-declared tool profiles keyed by id. An entry whose id
	// matches a built-in profile replaces it.
	Profiles       map[string]ProfileConfig `yaml:"profiles,omitempty"`
	ContextServers []ContextServerConfig    `yaml:"contextServers,omitempty"`
	PersistTools   *bool                    `yaml:"persistTools,omitempty"` // defaults to true
}

// ProfileConfig is a user-declared tool profile.
type ProfileConfig struct {
	Name  string          `yaml:"name,omitempty"`
	Tools map[string]bool `yaml:"tools,omitempty"`
}

// ContextServerConfig describes an external tool source spoken to over stdio.
type ContextServerConfig struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout int               `yaml:"timeout,omitempty"` // seconds, for the initialize + tools/list exchange
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         string `yaml:"file,omitempty"`
}

// StoreConfig selects the SQLite database location.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // empty means <data dir>/crewdesk.db
}

// CallsConfig tunes the incoming-call notifier.
type CallsConfig struct {
	JoinTimeout int `yaml:"joinTimeout,omitempty"` // seconds
}

// ToolPersistence reports whether tool enablement should be saved to the store.
func (a AssistantConfig) ToolPersistence() bool {
	return a.PersistTools == nil || *a.PersistTools
}
