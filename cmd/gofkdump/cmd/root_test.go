package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute(t *testing.T) {
	// Execute() calls os.Exit(1) on error, so only its presence is checked.
	assert.NotNil(t, Execute)
}

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version, "Version should not be empty")
	assert.NotEmpty(t, Commit, "Commit should not be empty")
}

func TestCLIFlagsDefaults(t *testing.T) {
	assert.Equal(t, "gofkdump.yaml", rootCmd.PersistentFlags().Lookup("config").DefValue)
	assert.Equal(t, "c", rootCmd.PersistentFlags().Lookup("config").Shorthand)
	assert.Equal(t, "", rootCmd.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, "", rootCmd.PersistentFlags().Lookup("log-format").DefValue)
	assert.Equal(t, "0", rootCmd.PersistentFlags().Lookup("workers").DefValue)
	assert.Equal(t, "", rootCmd.PersistentFlags().Lookup("backup-dir").DefValue)
}

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{name: "empty config file", cfgValue: "", want: ""},
		{name: "custom config file", cfgValue: "/path/to/custom.yaml", want: "/path/to/custom.yaml"},
		{name: "config file with spaces", cfgValue: "/path/to/my config.yaml", want: "/path/to/my config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalWorkers := workers
	originalBackupDir := backupDir
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		workers = originalWorkers
		backupDir = originalBackupDir
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
		workers   int
		backupDir string
		want      CLIOverrides
	}{
		{
			name: "empty overrides",
			want: CLIOverrides{},
		},
		{
			name:      "all overrides set",
			logLevel:  "debug",
			logFormat: "json",
			workers:   8,
			backupDir: "/var/backups/shop",
			want: CLIOverrides{
				LogLevel:  "debug",
				LogFormat: "json",
				Workers:   8,
				BackupDir: "/var/backups/shop",
			},
		},
		{
			name:    "only workers",
			workers: 3,
			want:    CLIOverrides{Workers: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			workers = tt.workers
			backupDir = tt.backupDir
			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestSubcommandsAreAddedToRoot(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"backup", "restore", "plan", "validate", "version"} {
		assert.True(t, names[want], "%s command should be added to root command", want)
	}
}

func TestCommandStructure(t *testing.T) {
	for _, c := range []struct {
		use  string
		long string
	}{
		{backupCmd.Use, backupCmd.Long},
		{restoreCmd.Use, restoreCmd.Long},
		{planCmd.Use, planCmd.Long},
		{validateCmd.Use, validateCmd.Long},
	} {
		t.Run(c.use, func(t *testing.T) {
			assert.Contains(t, c.long, "Example:")
			assert.Contains(t, c.long, "gofkdump "+c.use)
		})
	}
	assert.NotNil(t, backupCmd.RunE)
	assert.NotNil(t, restoreCmd.RunE)
	assert.NotNil(t, planCmd.RunE)
	assert.NotNil(t, validateCmd.RunE)
}

func TestForceFlags(t *testing.T) {
	backupForceFlag := backupCmd.Flags().Lookup("force")
	assert.NotNil(t, backupForceFlag)
	assert.Equal(t, "false", backupForceFlag.DefValue)

	restoreForceFlag := restoreCmd.Flags().Lookup("force")
	assert.NotNil(t, restoreForceFlag)
	assert.Equal(t, "false", restoreForceFlag.DefValue)

	assert.Nil(t, planCmd.Flags().Lookup("force"))
}
