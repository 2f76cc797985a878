package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/qbclient/internal/config"
	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/internal/logging"
	"github.com/fivetwenty-io/qbclient/pkg/qbclient"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

// Persistent flag names shared by every command.
const (
	FlagConfig  = "config"
	FlagEnvFile = "env-file"
	FlagOutput  = "output"
	FlagVerbose = "verbose"
)

// stringSetting returns an explicitly set flag value, falling back to viper
// so that values bound in main (and QB_ environment overrides) still apply.
func stringSetting(cmd *cobra.Command, name string) string {
	if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
		return flag.Value.String()
	}

	if value := viper.GetString(name); value != "" {
		return value
	}

	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.DefValue
	}

	return ""
}

func outputFormat(cmd *cobra.Command) string {
	return stringSetting(cmd, FlagOutput)
}

func configPath(cmd *cobra.Command) string {
	if path := stringSetting(cmd, FlagConfig); path != "" {
		return path
	}

	return config.DefaultPath()
}

func verbose(cmd *cobra.Command) bool {
	if flag := cmd.Flags().Lookup(FlagVerbose); flag != nil && flag.Changed {
		return flag.Value.String() == "true"
	}

	return viper.GetBool(FlagVerbose)
}

// loadConfig resolves the configuration for cmd from the environment, the
// dotenv file and the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: configPath(cmd),
		EnvFile:    stringSetting(cmd, FlagEnvFile),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// createClient builds an API client from the resolved configuration. Logs
// go to stderr, pretty-printed when stderr is a terminal.
func createClient(cmd *cobra.Command) (quickbase.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose(cmd) || cfg.Debug {
		level = "debug"
	}

	logger := logging.New(logging.Config{
		Level:  level,
		Pretty: term.IsTerminal(int(os.Stderr.Fd())),
		Output: cmd.ErrOrStderr(),
	})

	client, err := qbclient.New(cmd.Context(), cfg.Quickbase(logger, nil))
	if err != nil {
		return nil, err
	}

	return client, nil
}

// render writes value in the selected output format. table fills the table
// used for the default format.
func render(cmd *cobra.Command, value any, header []string, rows [][]string) error {
	out := cmd.OutOrStdout()

	switch format := outputFormat(cmd); format {
	case constants.FormatJSON:
		return writeJSON(out, value)
	case constants.FormatYAML:
		return writeYAML(out, value)
	case constants.FormatTable, "":
		return writeTable(out, header, rows)
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownOutput, format)
	}
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func writeYAML(out io.Writer, value any) error {
	encoder := yaml.NewEncoder(out)
	defer func() { _ = encoder.Close() }()

	return encoder.Encode(value)
}

func writeTable(out io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(out)

	headerArgs := make([]any, len(header))
	for i, h := range header {
		headerArgs[i] = h
	}

	table.Header(headerArgs...)

	for _, row := range rows {
		_ = table.Append(row)
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
