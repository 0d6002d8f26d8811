package logger

// Config is the logging configuration.
type Config struct {
	Level string `json:"level"` // debug, info, warn, error (default: info)
	File  string `json:"file"`  // optional log file, teed with stdout
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
