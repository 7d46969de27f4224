package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/render"
)

var (
	initForce    bool
	listPrefix   string
	listDefaults bool
)

// configPath returns the file the config commands edit: --config, else the
// file that was loaded, else ~/.narrate/config.yaml.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if f := cfgMgr.ConfigFile(); f != "" {
		return f
	}
	return services.Home.ConfigPath()
}

// entryList renders config entries sorted by key.
type entryList []config.Entry

func (l entryList) Table() ([]string, [][]string, []render.Align) {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{e.Key, fmt.Sprint(e.Value), e.Description})
	}
	return []string{"KEY", "VALUE", "DESCRIPTION"}, rows, nil
}

func sortedEntries(entries map[string]config.Entry) entryList {
	out := make(entryList, 0, len(entries))
	for _, k := range config.SortedKeys(entries) {
		out = append(out, entries[k])
	}
	return out
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
	Long: `Inspect and edit the narrate config file.

Values resolve in order: NARRATE_* environment variables, the config file,
then built-in defaults. set, unset and reset edit the file only.

Examples:
  narrate config init
  narrate config list --defaults -o table
  narrate config set synth.voice nova
  narrate config reset synth.voice`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			if err := services.Home.EnsureExists(); err != nil {
				return err
			}
			path = services.Home.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		mapping, err := writeDefaultMapping(services.Home.MappingPath("default"), initForce)
		if err != nil {
			return err
		}
		return render.Output(outFormat, map[string]string{"config": path, "mapping": mapping})
	},
}

// writeDefaultMapping copies the built-in metadata mapping to path so it can
// be edited and selected with metadata.mapping_file. An existing file is
// kept unless force is set.
func writeDefaultMapping(path string, force bool) (string, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, metadata.DefaultConfigYAML(), 0o644); err != nil {
		return "", fmt.Errorf("write mapping: %w", err)
	}
	return path, nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return render.Output(outFormat, services.Config)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List settings from the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries map[string]config.Entry
		if listDefaults {
			entries = make(map[string]config.Entry)
			for _, def := range config.DefaultEntries() {
				if strings.HasPrefix(def.Key, listPrefix) {
					def.Value = cfgMgr.Value(def.Key)
					entries[def.Key] = def
				}
			}
		} else {
			var err error
			if entries, err = config.NewStore(configPath()).GetByPrefix(listPrefix); err != nil {
				return err
			}
		}
		return render.Output(outFormat, sortedEntries(entries))
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := config.ValidateKey(key); err != nil {
			return err
		}
		value := cfgMgr.Value(key)
		if value == nil {
			return fmt.Errorf("setting %q not found", key)
		}
		entry := config.Entry{Key: key, Value: value}
		if def := config.GetDefault(key); def != nil {
			entry.Description = def.Description
		}
		return render.Output(outFormat, entry)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Long: `Set a value in the config file. The value is parsed as the type of the
key's default; list values are comma separated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.ParseValue(args[0], args[1])
		if err != nil {
			return err
		}
		store := config.NewStore(configPath())
		if err := store.Set(args[0], value); err != nil {
			return err
		}
		entry, err := store.Get(args[0])
		if err != nil {
			return err
		}
		return render.Output(outFormat, entry)
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a setting from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.NewStore(configPath()).Delete(args[0])
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Write a setting's default value to the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath())
		if err := config.ResetToDefault(store, args[0]); err != nil {
			return err
		}
		entry, err := store.Get(args[0])
		if err != nil {
			return err
		}
		return render.Output(outFormat, entry)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configListCmd.Flags().StringVar(&listPrefix, "prefix", "", "filter by key prefix (e.g., 'providers.openai.')")
	configListCmd.Flags().BoolVar(&listDefaults, "defaults", false, "list every known key with its effective value")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configResetCmd)
}
