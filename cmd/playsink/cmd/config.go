package cmd

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/playsink/playsink/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Redirect the output to a file to create a configuration template:

  playsink config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/playsink, $HOME/.playsink)
  - Environment variables with the PLAYSINK_ prefix and underscores for
    nesting (server.port -> PLAYSINK_SERVER_PORT)
  - Command-line flags (for some options)`,
	RunE: runConfigDump,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Show the configuration after merging file, environment, and defaults.",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading defaults: %w", err)
	}
	fmt.Println("# playsink configuration")
	fmt.Println("#")
	fmt.Println("# All values shown are defaults. Duration format: 30s, 5m, 1h, 7d, 2w.")
	fmt.Println("# Size format: 500KiB, 1MiB, 2GiB.")
	fmt.Println("#")
	fmt.Println("# Any key can be overridden with a PLAYSINK_ environment variable,")
	fmt.Println("# e.g. server.port -> PLAYSINK_SERVER_PORT.")
	fmt.Println("")
	return writeYAML(toMap(cfg))
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeYAML(toMap(cfg))
}

// toMap flattens a config struct into a map keyed by mapstructure tags,
// rendering durations and byte sizes in their human-readable text forms.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch fv := field.Interface().(type) {
		case config.Duration:
			result[key] = fv.String()
		case config.ByteSize:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func writeYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
