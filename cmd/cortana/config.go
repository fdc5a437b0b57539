package main

import (
	"fmt"
	"maps"

	"github.com/ashwch/cortana/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			payload, err := toml.Marshal(masked(a.cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "# %s\n%s", a.cfgPath, payload)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "get <key>",
		Short:   "Print one setting",
		Example: `  cortana config get providers.anthropic.model`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			value, err := a.cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, value)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and save it",
		Example: `  cortana config set mode suggest
  cortana config set safety.auto_approve_allowed true`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// start from the file so flag overrides are not saved with it
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(a.cfgPath, cfg); err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				value = args[1]
			}
			fmt.Fprintf(a.stdout, "%s=%s\n", args[0], value)
			return nil
		},
	})
	return cmd
}

// masked hides inline API keys.
func masked(cfg config.Config) config.Config {
	cfg.Providers = maps.Clone(cfg.Providers)
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = "[set]"
			cfg.Providers[name] = p
		}
	}
	return cfg
}
