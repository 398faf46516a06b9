package config

// Component defines the standard configuration lifecycle methods.
// Each section of Config implements it so every section is handled the same way.
type Component interface {
	// ApplyDefaults fills zero values with sensible defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies environment variable overrides
	ApplyEnvOverrides()

	// Validate returns an error if the configuration is invalid.
	Validate() error
}

// Apply runs ApplyDefaults, ApplyEnvOverrides and Validate on each component in order.
// It stops at the first invalid component.
func Apply(components ...Component) error {
	for _, c := range components {
		c.ApplyDefaults()
		c.ApplyEnvOverrides()
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}
