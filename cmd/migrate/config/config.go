package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/defistate/defistate-migrator-go/chains"
	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/defistate/defistate-migrator-go/protocols/uniswapv3"
	v3calculator "github.com/defistate/defistate-migrator-go/protocols/uniswapv3/calculator"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPrivateKeyEnv    = "MIGRATOR_PRIVATE_KEY"
	DefaultFee              = 3000
	DefaultTolerance        = 50
	DefaultGasBufferPercent = 20
)

// DeploymentOverrides replaces individual addresses of the known deployment.
type DeploymentOverrides struct {
	V2Factory string `yaml:"v2Factory"`
	V3Factory string `yaml:"v3Factory"`
	Migrator  string `yaml:"migrator"`
}

// RangeConfig is a tick range. Leaving both bounds out selects the full range.
type RangeConfig struct {
	Lower *int64 `yaml:"lower"`
	Upper *int64 `yaml:"upper"`
}

// snap moves both bounds to the nearest tick usable with spacing.
func (r *RangeConfig) snap(spacing int64) error {
	for _, b := range []struct {
		name string
		tick *int64
	}{{"lower", r.Lower}, {"upper", r.Upper}} {
		usable, err := v3calculator.NearestUsableTick(*b.tick, spacing)
		if err != nil {
			return fmt.Errorf("config: range.%s %d: %w", b.name, *b.tick, err)
		}
		*b.tick = usable
	}
	return nil
}

// MigrateConfig is the YAML file read by the migrate command.
type MigrateConfig struct {
	RPCURL string `yaml:"rpcURL"`
	// WSURL feeds the head stream and defaults to RPCURL.
	WSURL   string `yaml:"wsURL"`
	ChainID uint64 `yaml:"chainID"`

	Pair string `yaml:"pair"`
	// Account is read-only identity for quotes; with a key it must match.
	Account       string `yaml:"account"`
	PrivateKeyEnv string `yaml:"privateKeyEnv"`

	Fee       uint32      `yaml:"fee"`
	Range     RangeConfig `yaml:"range"`
	Tolerance int64       `yaml:"tolerance"`
	UsePermit bool        `yaml:"usePermit"`

	GasBufferPercent uint64              `yaml:"gasBufferPercent"`
	Deployment       DeploymentOverrides `yaml:"deployment"`
	Policy           migrator.Policy     `yaml:"policy"`
	LogLevel         string              `yaml:"logLevel"`
}

func defaults() MigrateConfig {
	return MigrateConfig{
		PrivateKeyEnv:    DefaultPrivateKeyEnv,
		Fee:              DefaultFee,
		Tolerance:        DefaultTolerance,
		UsePermit:        true,
		GasBufferPercent: DefaultGasBufferPercent,
		Policy:           migrator.DefaultPolicy(),
		LogLevel:         "info",
	}
}

// LoadConfig reads path, applies defaults for missing keys and validates.
func LoadConfig(path string) (*MigrateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated MigrateConfig.
func Parse(data []byte) (*MigrateConfig, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.WSURL == "" {
		cfg.WSURL = cfg.RPCURL
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("config: %s %q is not an address", field, value)
	}
	return common.HexToAddress(value), nil
}

func (c *MigrateConfig) validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpcURL is required")
	}
	if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("config: wsURL %q must be a websocket endpoint", c.WSURL)
	}
	if c.ChainID == 0 {
		return errors.New("config: chainID is required")
	}
	if c.Pair == "" {
		return errors.New("config: pair is required")
	}
	if _, err := parseAddress("pair", c.Pair); err != nil {
		return err
	}
	if c.Account != "" {
		if _, err := parseAddress("account", c.Account); err != nil {
			return err
		}
	}
	spacing, err := uniswapv3.FeeAmount(c.Fee).TickSpacing()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if (c.Range.Lower == nil) != (c.Range.Upper == nil) {
		return errors.New("config: range needs both lower and upper, or neither")
	}
	if c.Range.Lower != nil {
		if err := c.Range.snap(spacing); err != nil {
			return err
		}
	}
	if err := migrator.SlippageTolerance(c.Tolerance).Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.ChainDeployment(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logLevel %q", c.LogLevel)
	}
	return nil
}

// ChainDeployment returns the known deployment for the chain with overrides
// applied. Unknown chains must override every address.
func (c *MigrateConfig) ChainDeployment() (chains.Deployment, error) {
	d, err := chains.DeploymentFor(c.ChainID)
	if err != nil {
		d = chains.Deployment{ChainID: c.ChainID}
	}

	overrides := []struct {
		field string
		value string
		dest  *common.Address
	}{
		{"deployment.v2Factory", c.Deployment.V2Factory, &d.V2Factory},
		{"deployment.v3Factory", c.Deployment.V3Factory, &d.V3Factory},
		{"deployment.migrator", c.Deployment.Migrator, &d.Migrator},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		addr, err := parseAddress(o.field, o.value)
		if err != nil {
			return chains.Deployment{}, err
		}
		*o.dest = addr
	}

	if err := d.Validate(); err != nil {
		return chains.Deployment{}, fmt.Errorf("config: chain %d: %w", c.ChainID, err)
	}
	return d, nil
}

// PairAddress returns the source pair.
func (c *MigrateConfig) PairAddress() common.Address {
	return common.HexToAddress(c.Pair)
}

// AccountAddress returns the configured account, if any.
func (c *MigrateConfig) AccountAddress() (common.Address, bool) {
	if c.Account == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Account), true
}

// PrivateKey reads the signing key from the configured environment variable.
// An empty result means the command runs read-only.
func (c *MigrateConfig) PrivateKey() string {
	return strings.TrimSpace(os.Getenv(c.PrivateKeyEnv))
}

// Params returns the migration parameters.
func (c *MigrateConfig) Params() migrator.Params {
	rng := migrator.FullRange()
	if c.Range.Lower != nil && c.Range.Upper != nil {
		rng = migrator.TickRange(*c.Range.Lower, *c.Range.Upper)
	}
	return migrator.Params{
		Fee:       uniswapv3.FeeAmount(c.Fee),
		Range:     rng,
		Tolerance: migrator.SlippageTolerance(c.Tolerance),
	}
}
