package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format,omitempty"` // json, console
	File   string `yaml:"file" json:"file,omitempty"`     // optional extra output path
}

// OutputPaths returns zap output paths for this config.
func (c *LoggingConfig) OutputPaths() []string {
	paths := []string{"stderr"}
	if c.File != "" {
		paths = append(paths, c.File)
	}
	return paths
}
