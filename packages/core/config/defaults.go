package config

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Parallelism: 1,
		Bail:        BoolPtr(false),
		Verbose:     BoolPtr(false),
		NoColor:     BoolPtr(false),
		Reporters:   []string{"console"},
	}
}

// IsDefault reports whether c carries only default values.
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Parallelism == d.Parallelism &&
		c.StartRate == 0 &&
		c.GetBail() == d.GetBail() &&
		c.GetVerbose() == d.GetVerbose() &&
		c.GetNoColor() == d.GetNoColor() &&
		len(c.Reporters) == 1 && c.Reporters[0] == d.Reporters[0] &&
		c.OutputDir == "" && c.Database == "" && c.EnvFile == "" &&
		len(c.Variables) == 0 && c.Log == nil
}
