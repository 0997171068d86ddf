// ncval validates untrusted x86-32 code regions against the sandbox rules.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	debug      string
	host       string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "ncval",
		Short:         "Static validator for sandboxed x86-32 code",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := log.InitLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat); err != nil {
				return err
			}
			log.EnableModules(g.debug)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML feature policy file (default $"+cpufeatures.ConfigEnv+")")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "terminal", "log format: terminal, color, json")
	pf.StringVar(&g.debug, "debug", "", "comma separated modules to trace: ncval,loader,cpufeatures,cli or all")
	pf.StringVar(&g.host, "host", "", "host vector override: detect, policy, all, none")

	rootCmd.AddCommand(
		newValidateCmd(g),
		newDisasmCmd(g),
		newStatsCmd(g),
		newFeaturesCmd(g),
		newDiffCmd(),
		newRenderCmd(),
	)
	return rootCmd
}

// loadConfig resolves --config, falling back to the environment.
func loadConfig(g *globalFlags) (*cpufeatures.Config, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv(cpufeatures.ConfigEnv)
	}
	cfg := &cpufeatures.Config{}
	if path != "" {
		var err error
		if cfg, err = cpufeatures.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if g.host != "" {
		cfg.Host.Mode = g.host
	}
	return cfg, nil
}

func loadFeatures(g *globalFlags) (*cpufeatures.Config, *cpufeatures.Features, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, err
	}
	f, err := cfg.Features(cpufeatures.DetectHost)
	if err != nil {
		return nil, nil, err
	}
	log.Debug(log.CLI, "features", "policy", f.Policy.String(), "host", f.Host.String())
	return cfg, f, nil
}

// errChanged is returned by diff when the reports differ.
var errChanged = errors.New("reports differ")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, ncvalerrors.ErrUnsafeCode) || errors.Is(err, errChanged) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "ncval: %v\n", err)
		os.Exit(2)
	}
}
