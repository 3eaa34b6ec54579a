package qtbirds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//Config holds one run's settings: input files, the character state space,
//the particle count, and the prior means for the three sampled rates
type Config struct {
	TreeFile     string  `yaml:"tree"`
	SeqFile      string  `yaml:"sequences"`
	CharFile     string  `yaml:"chars"`
	NCharStates  int     `yaml:"nstates"`
	Particles    int     `yaml:"particles"`
	MolRateMean  float64 `yaml:"mol_rate_mean"`
	CharRateMean float64 `yaml:"char_rate_mean"`
	JumpRateMean float64 `yaml:"jump_rate_mean"`
	PrintFreq    int     `yaml:"print_freq"`
	Seed         uint64  `yaml:"seed"`
}

//DefaultConfig returns the settings every run starts from
func DefaultConfig() *Config {
	return &Config{
		NCharStates:  2,
		Particles:    1000,
		MolRateMean:  1.0,
		CharRateMean: 1.0,
		JumpRateMean: 0.1,
		PrintFreq:    0,
		Seed:         1,
	}
}

//LoadConfig reads and validates a YAML run configuration
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

//Validate checks the configuration invariants that must hold before any
//particle starts
func (cfg *Config) Validate() error {
	if cfg.NCharStates < 2 {
		return fmt.Errorf("nstates must be at least 2, got %d", cfg.NCharStates)
	}
	if cfg.Particles < 1 {
		return fmt.Errorf("particles must be positive, got %d", cfg.Particles)
	}
	if cfg.MolRateMean <= 0 || cfg.CharRateMean <= 0 || cfg.JumpRateMean <= 0 {
		return fmt.Errorf("rate prior means must be positive, got mol=%v char=%v jump=%v",
			cfg.MolRateMean, cfg.CharRateMean, cfg.JumpRateMean)
	}
	return nil
}
