// Package config holds the daemon configuration: TOML on disk with
// environment variable overrides (INDIETREAT_* via envconfig).
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	indietreat "github.com/indietreat/indietreat/go"
)

// Variant selects the payment medium served by the daemon.
const (
	VariantNative = "native"
	VariantToken  = "token"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string
	// Variant is "native" or "token".
	Variant string
	Token   Token
	Checkout Checkout
}

// Token configures the payment token for the token variant.
type Token struct {
	Name    string
	ChainID int64
	Address string
	// Minter receives the initial supply when Premint > 0.
	Minter  string
	Premint int64
}

// Checkout configures the checkout itself.
type Checkout struct {
	// Spender is the checkout's own address for the token variant, i.e.
	// the party buyers grant allowances to.
	Spender string
}

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		Listen:  "127.0.0.1:8402",
		Variant: VariantNative,
		Token: Token{
			Name:    "TreatToken",
			ChainID: 8453,
		},
	}
}

// FromReader loads config from a reader over the defaults, then applies
// INDIETREAT_* environment overrides.
func FromReader(reader io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(reader).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := envconfig.Process("INDIETREAT", cfg); err != nil {
		return nil, fmt.Errorf("processing env var overrides: %w", err)
	}
	return cfg, nil
}

// Load reads config from a TOML file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()
	return FromReader(f)
}

// Bytes encodes a config as TOML.
func Bytes(cfg *Config) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the configuration for the selected variant.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	switch c.Variant {
	case VariantNative:
		return nil
	case VariantToken:
		if c.Token.Name == "" {
			return fmt.Errorf("token name is required for the token variant")
		}
		if c.Token.ChainID <= 0 {
			return fmt.Errorf("token chain id must be positive")
		}
		if !indietreat.IsValidAddress(c.Token.Address) {
			return fmt.Errorf("token address is required for the token variant")
		}
		if !indietreat.IsValidAddress(c.Checkout.Spender) {
			return fmt.Errorf("checkout spender address is required for the token variant")
		}
		if c.Token.Premint > 0 && !indietreat.IsValidAddress(c.Token.Minter) {
			return fmt.Errorf("token minter address is required when premint is set")
		}
		return nil
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
}
