package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowbit-labs/flowbit-pulse/internal/logging"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
	"github.com/flowbit-labs/flowbit-pulse/internal/store"
)

// configSetters maps the keys accepted by `config set` to their validating setter.
var configSetters = map[string]func(*store.Config, string) error{
	"api_url":   func(c *store.Config, v string) error { c.APIURL = v; return nil },
	"api_token": func(c *store.Config, v string) error { c.APIToken = v; return nil },
	"request_timeout": func(c *store.Config, v string) error {
		prev := c.RequestTimeout
		c.RequestTimeout = v
		if _, err := c.Timeout(); err != nil {
			c.RequestTimeout = prev
			return err
		}
		return nil
	},
	"ordering": func(c *store.Config, v string) error {
		if _, err := reconcile.ParseOrdering(v); err != nil {
			return err
		}
		c.Ordering = v
		return nil
	},
	"log_level": func(c *store.Config, v string) error {
		if _, _, err := logging.ParseLevel(v); err != nil {
			return err
		}
		c.LogLevel = v
		return nil
	},
	"log_file":  func(c *store.Config, v string) error { c.LogFile = v; return nil },
	"state_dir": func(c *store.Config, v string) error { c.StateDir = v; return nil },
	"tui.theme": func(c *store.Config, v string) error {
		switch v {
		case "", "auto", "dark", "light", "ascii":
		default:
			return fmt.Errorf("unknown theme %q (auto|dark|light|ascii)", v)
		}
		tuiConfig(c).Theme = v
		return nil
	},
	"tui.hide_updates": func(c *store.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("tui.hide_updates: %w", err)
		}
		tuiConfig(c).HideUpdates = b
		return nil
	},
}

func tuiConfig(c *store.Config) *store.TUIConfig {
	if c.TUI == nil {
		c.TUI = &store.TUIConfig{}
	}
	return c.TUI
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write ~/.pulse/config.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg := *app.cfg
			if cfg.APIToken != "" {
				cfg.APIToken = "********"
			}
			return writeOut(cmd, app, envelope{
				Data: cfg,
				Meta: map[string]any{
					"path":     path,
					"api_url":  app.APIURL,
					"dir":      app.Dir,
					"ordering": orderingOrDefault(app.Ordering),
				},
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config key (" + strings.Join(configKeys(), "|") + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(strings.TrimSpace(args[0]))
			set, ok := configSetters[key]
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown config key %q", args[0]))
			}
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := set(cfg, strings.TrimSpace(args[1])); err != nil {
				return writeErr(cmd, err)
			}
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, envelope{Data: map[string]any{"key": key, "saved": true}})
		},
	})

	return cmd
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orderingOrDefault(s string) reconcile.Ordering {
	o, err := reconcile.ParseOrdering(s)
	if err != nil {
		return reconcile.OrderingLastWrite
	}
	return o
}
