package cpufeatures

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// ConfigEnv names the environment variable holding the default config path.
const ConfigEnv = "NCVAL_CONFIG"

// Config is the on-disk description of the feature vectors and scan options.
type Config struct {
	Policy  PolicyConfig  `yaml:"policy"`
	Host    HostConfig    `yaml:"host"`
	Options OptionsConfig `yaml:"options"`
}

// PolicyConfig selects which extensions the sandbox permits.
type PolicyConfig struct {
	// Base is "validator" (default), "none" or "all".
	Base  string   `yaml:"base"`
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// HostConfig selects the host vector.
type HostConfig struct {
	// Mode is "detect" (default), "policy" (host mirrors the policy),
	// "all" or "none".
	Mode    string   `yaml:"mode"`
	Disable []string `yaml:"disable"`
}

// OptionsConfig carries default scan options for tools.
type OptionsConfig struct {
	Contiguous bool `yaml:"contiguous"`
	Trace      bool `yaml:"trace"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	log.Debug(log.CPUFeatures, "LoadConfig", "path", path, "base", cfg.Policy.Base, "host", cfg.Host.Mode)
	return cfg, nil
}

// ParseConfig parses YAML config bytes and checks every feature name.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ncvalerrors.ErrMalformedConfig, err)
	}
	if _, err := cfg.PolicySet(); err != nil {
		return nil, err
	}
	if _, err := parseNames(cfg.Host.Disable); err != nil {
		return nil, err
	}
	switch cfg.Host.Mode {
	case "", "detect", "policy", "all", "none":
	default:
		return nil, fmt.Errorf("%w: host mode %q", ncvalerrors.ErrMalformedConfig, cfg.Host.Mode)
	}
	return &cfg, nil
}

// PolicySet resolves the policy section into a Set.
func (c *Config) PolicySet() (Set, error) {
	var s Set
	switch c.Policy.Base {
	case "", "validator":
		s = ValidatorPolicy
	case "none":
		s = 0
	case "all":
		s = FullSet()
	default:
		return 0, fmt.Errorf("%w: policy base %q", ncvalerrors.ErrMalformedConfig, c.Policy.Base)
	}
	allow, err := parseNames(c.Policy.Allow)
	if err != nil {
		return 0, err
	}
	deny, err := parseNames(c.Policy.Deny)
	if err != nil {
		return 0, err
	}
	for _, f := range allow {
		s = s.With(f)
	}
	for _, f := range deny {
		s = s.Without(f)
	}
	return s, nil
}

// Features resolves the config into the vectors used by a validation call.
// detect is consulted only in "detect" mode.
func (c *Config) Features(detect func() Set) (*Features, error) {
	policy, err := c.PolicySet()
	if err != nil {
		return nil, err
	}
	var host Set
	switch c.Host.Mode {
	case "", "detect":
		host = detect()
	case "policy":
		host = policy
	case "all":
		host = FullSet()
	case "none":
		host = 0
	default:
		return nil, fmt.Errorf("%w: host mode %q", ncvalerrors.ErrMalformedConfig, c.Host.Mode)
	}
	disable, err := parseNames(c.Host.Disable)
	if err != nil {
		return nil, err
	}
	for _, f := range disable {
		host = host.Without(f)
	}
	return &Features{Host: host, Policy: policy}, nil
}

func parseNames(names []string) ([]Feature, error) {
	out := make([]Feature, 0, len(names))
	for _, n := range names {
		f, err := ParseFeature(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ncvalerrors.ErrUnknownFeature, n)
		}
		out = append(out, f)
	}
	return out, nil
}
