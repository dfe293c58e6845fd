// Package config loads the server configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Defaults are the training parameters used when a request leaves them out.
type Defaults struct {
	LayerSizes    []int   `toml:"layer_sizes"`
	Epochs        int     `toml:"epochs"`
	MiniBatchSize int     `toml:"mini_batch_size"`
	LearningRate  float64 `toml:"learning_rate"`
	Seed          int64   `toml:"seed"`
}

// Config captures the runtime knobs of the server.
type Config struct {
	ListenAddr string   `toml:"listen_addr"`
	DataDir    string   `toml:"data_dir"`
	ModelDir   string   `toml:"model_dir"`
	Debug      int      `toml:"debug"`
	Synthetic  bool     `toml:"synthetic"` // run on generated data instead of MNIST
	Defaults   Defaults `toml:"defaults"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8000",
		DataDir:    "data",
		ModelDir:   "models",
		Debug:      1,
		Defaults: Defaults{
			LayerSizes:    []int{784, 30, 10},
			Epochs:        5,
			MiniBatchSize: 10,
			LearningRate:  3.0,
		},
	}
}

// Load reads and validates path. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate verifies the configuration is runnable.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir must be set")
	}
	if !c.Synthetic && c.DataDir == "" {
		return fmt.Errorf("data_dir must be set unless synthetic data is enabled")
	}
	if len(c.Defaults.LayerSizes) < 2 {
		return fmt.Errorf("defaults.layer_sizes needs at least 2 layers")
	}
	if c.Defaults.Epochs <= 0 || c.Defaults.MiniBatchSize <= 0 || c.Defaults.LearningRate <= 0 {
		return fmt.Errorf("defaults.epochs, mini_batch_size and learning_rate must be > 0")
	}
	return nil
}
