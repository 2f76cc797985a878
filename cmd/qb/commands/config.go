package commands

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fivetwenty-io/qbclient/internal/auth"
	"github.com/fivetwenty-io/qbclient/internal/config"
	"github.com/fivetwenty-io/qbclient/internal/constants"
)

// NewConfigCommand creates the config command group
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "View and modify the qb configuration file",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetRealmCommand())
	cmd.AddCommand(newConfigSetTokenCommand())
	cmd.AddCommand(newConfigAddAppCommand())
	cmd.AddCommand(newConfigRemoveAppCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long:  "Show the configuration after environment, dotenv and file settings are merged. The user token is masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.UserToken != "" {
				shown.UserToken = auth.Mask(shown.UserToken)
			}

			rows := [][]string{
				{"Config File", configPath(cmd)},
				{"Realm Hostname", orNotAvailable(shown.RealmHostname)},
				{"User Token", orNotAvailable(shown.UserToken)},
			}

			for _, app := range shown.Apps {
				rows = append(rows, []string{"App " + app.Name, app.ID})
			}

			rows = append(rows,
				[]string{"Retry Max Attempts", strconv.Itoa(shown.RetryMaxAttempts)},
				[]string{"Retry Base Delay", shown.RetryBaseDelay.String()},
				[]string{"Retry Max Delay", shown.RetryMaxDelay.String()},
				[]string{"Max Concurrency", strconv.Itoa(shown.MaxConcurrency)},
				[]string{"Log Level", shown.LogLevel},
			)

			if shown.NATSURL != "" {
				rows = append(rows, []string{"NATS URL", shown.NATSURL}, []string{"Invalidation Subject", shown.InvalidationSubject})
			}

			return render(cmd, shown, []string{"Property", "Value"}, rows)
		},
	}
}

func newConfigSetRealmCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "set-realm HOSTNAME",
		Short:   "Set the realm hostname",
		Example: `  qb config set-realm example.quickbase.com`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			realm := strings.TrimSpace(args[0])
			if realm == "" {
				return constants.ErrRealmHostnameRequired
			}

			return updateConfig(cmd, "set", "realm_hostname", realm, func(cfg *config.Config) {
				cfg.RealmHostname = realm
			})
		},
	}
}

func newConfigSetTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token [TOKEN]",
		Short: "Store a user token",
		Long:  "Store a Quickbase user token in the config file. Without an argument the token is read from the terminal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				read, err := promptToken(cmd)
				if err != nil {
					return err
				}

				token = read
			}

			token = strings.TrimSpace(token)
			if token == "" {
				return constants.ErrUserTokenRequired
			}

			return updateConfig(cmd, "set", "user_token", auth.Mask(token), func(cfg *config.Config) {
				cfg.UserToken = token
			})
		},
	}
}

func promptToken(cmd *cobra.Command) (string, error) {
	_, err := fmt.Fprint(cmd.ErrOrStderr(), "User Token: ")
	if err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read user token: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.ErrOrStderr())

	return string(tokenBytes), nil
}

func newConfigAddAppCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "add-app NAME APP_ID",
		Short:   "Map an app name to its ID",
		Example: `  qb config add-app Sales bqsales01`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, id := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])

			return updateConfig(cmd, "add", "app", name+"="+id, func(cfg *config.Config) {
				for i, app := range cfg.Apps {
					if app.Name == name {
						cfg.Apps[i].ID = id

						return
					}
				}

				cfg.Apps = append(cfg.Apps, config.App{Name: name, ID: id})
			})
		},
	}
}

func newConfigRemoveAppCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-app NAME",
		Short: "Remove an app mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			return updateConfig(cmd, "remove", "app", name, func(cfg *config.Config) {
				apps := cfg.Apps[:0]
				for _, app := range cfg.Apps {
					if app.Name != name {
						apps = append(apps, app)
					}
				}

				cfg.Apps = apps
			})
		},
	}
}

// updateConfig edits the config file in place. Only values stored in the
// file are rewritten; environment overrides are never persisted.
func updateConfig(cmd *cobra.Command, action, key, value string, apply func(*config.Config)) error {
	path := configPath(cmd)

	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}

	apply(cfg)

	err = config.Save(path, cfg)
	if err != nil {
		return err
	}

	result := map[string]string{
		"action": action,
		"key":    key,
		"value":  value,
		"file":   path,
	}

	return render(cmd, result, []string{"Property", "Value"}, [][]string{
		{"Action", action},
		{"Key", key},
		{"Value", value},
		{"File", path},
	})
}

func orNotAvailable(value string) string {
	if value == "" {
		return constants.NotAvailable
	}

	return value
}
