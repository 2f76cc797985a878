//go:build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	RealmHostname string
	UserToken     string
	App           string
	Table         string
	QBPath        string
	Verbose       bool
}

// LoadTestConfig loads configuration from environment variables. App and
// Table name a table the token can read; the suite never writes to it.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		RealmHostname: os.Getenv("QB_REALM_HOSTNAME"),
		UserToken:     os.Getenv("QB_REALM_API_KEY"),
		App:           os.Getenv("QB_INTEGRATION_APP"),
		Table:         os.Getenv("QB_INTEGRATION_TABLE"),
		QBPath:        getQBPath(),
		Verbose:       os.Getenv("QB_VERBOSE") == "true",
	}
}

// getQBPath determines the path to the qb binary
func getQBPath() string {
	if path := os.Getenv("QB_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../qb", "./qb", "../qb"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "qb"
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.RealmHostname == "" || config.UserToken == "" {
		t.Skip("QB_REALM_HOSTNAME or QB_REALM_API_KEY not set, skipping integration test")
	}

	if config.App == "" || config.Table == "" {
		t.Skip("QB_INTEGRATION_APP or QB_INTEGRATION_TABLE not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.QBPath); err != nil {
		t.Skipf("qb binary not found at %s, skipping integration test", config.QBPath)
	}
}

// CommandRunner provides utilities for running qb commands
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{config: config, t: t}
}

// Run executes a qb command with an empty config file and returns output.
// Credentials and the app map come from the environment.
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	return runner.RunWithInput("", args...)
}

// RunWithInput executes a qb command with stdin input
func (runner *CommandRunner) RunWithInput(input string, args ...string) (stdout, stderr string, err error) {
	full := append([]string{"--config", runner.t.TempDir() + "/config.yml", "--env-file", ""}, args...)

	cmd := exec.Command(runner.config.QBPath, full...) //nolint:gosec // test binary path
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(), `QB_APP_IDS={"`+runner.config.App+`":"`+os.Getenv("QB_INTEGRATION_APP_ID")+`"}`)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.QBPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}
