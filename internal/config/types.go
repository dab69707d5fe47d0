package config

// Config is the root configuration for parley.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// APIConfig locates the remote assistant API.
type APIConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	AuthURL        string `yaml:"authUrl,omitempty"` // defaults to baseUrl
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	Service        string `yaml:"service,omitempty"` // reported in login metadata
	Device         string `yaml:"device,omitempty"`
}

// ChatConfig controls message sending.
type ChatConfig struct {
	SendTimeoutSeconds int `yaml:"sendTimeoutSeconds,omitempty"`
}

// SessionConfig defines where session state is kept.
type SessionConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures browser clients of the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         string `yaml:"file,omitempty"`
}
