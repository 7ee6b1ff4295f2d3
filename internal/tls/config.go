package tls

// Config is the [server.tls] section of the watchdog configuration.
// Certificate resolution order: explicit CertFile/KeyFile pair first, then
// Dir (with optional self-signed generation when the files are absent).
type Config struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	CertFile     string   `json:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `json:"key_file" mapstructure:"key_file"`
	Dir          string   `json:"dir" mapstructure:"dir"`
	AutoGenerate bool     `json:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `json:"min_version" mapstructure:"min_version"`
	MaxVersion   string   `json:"max_version" mapstructure:"max_version"`
	AutoGen      *AutoGen `json:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGen tunes self-signed certificate generation.
type AutoGen struct {
	CommonName   string   `json:"common_name" mapstructure:"common_name"`
	Organization string   `json:"organization" mapstructure:"organization"`
	DNSNames     []string `json:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `json:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `json:"valid_days" mapstructure:"valid_days"`
}
