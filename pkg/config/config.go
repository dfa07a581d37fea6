// Package config loads the layered Caelus user configuration and manages
// discovery of installed Caelus CML versions.
//
// Configuration is read from caelus.yaml files found in standard locations
// (system file, per-user files, environment overrides, working directory),
// merged in order so that later files override earlier ones. Environment
// variables in file contents are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	rcFileName  = "caelus.yaml"
	rcSystemVar = "CAELUSRC_SYSTEM"
	rcFileVar   = "CAELUSRC"
)

// Config is the root of the Caelus user configuration.
type Config struct {
	Caelus Caelus `yaml:"caelus"`
}

// Caelus holds the top-level configuration sections.
type Caelus struct {
	Logging   Logging `yaml:"logging"`
	CaelusCML CML     `yaml:"caelus_cml"`
	System    System  `yaml:"system"`
}

// Logging configures the CLI log output.
type Logging struct {
	Level     string `yaml:"level"`
	LogToFile bool   `yaml:"log_to_file"`
	LogFile   string `yaml:"log_file"`
}

// CML configures the available Caelus CML installations.
type CML struct {
	// Default names the version used when none is requested; the special
	// value "latest" selects the highest installed version.
	Default  string       `yaml:"default"`
	Versions []CMLVersion `yaml:"versions"`
}

// CMLVersion describes one CML installation.
type CMLVersion struct {
	Version         string `yaml:"version"`
	Path            string `yaml:"path"`
	PlatformInstall string `yaml:"platform_install"`
	MPIRoot         string `yaml:"mpi_root"`
}

// System configures job execution behavior.
type System struct {
	// JobScheduler is one of no_mpi, local_mpi, slurm.
	JobScheduler      string            `yaml:"job_scheduler"`
	SchedulerDefaults SchedulerDefaults `yaml:"scheduler_defaults"`
}

// SchedulerDefaults seeds queue settings for submitted jobs.
type SchedulerDefaults struct {
	Queue        string `yaml:"queue"`
	Account      string `yaml:"account"`
	NumNodes     int    `yaml:"num_nodes"`
	NumRanks     int    `yaml:"num_ranks"`
	Stdout       string `yaml:"stdout"`
	Stderr       string `yaml:"stderr"`
	JoinOutputs  bool   `yaml:"join_outputs"`
	MailOpts     string `yaml:"mail_opts"`
	EmailAddress string `yaml:"email_address"`
	QOS          string `yaml:"qos"`
	TimeLimit    string `yaml:"time_limit"`
	Shell        string `yaml:"shell"`
	MPIExtraArgs string `yaml:"mpi_extra_args"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Caelus: Caelus{
			Logging: Logging{Level: "info"},
			CaelusCML: CML{
				Default: "latest",
			},
			System: System{
				JobScheduler: "local_mpi",
				SchedulerDefaults: SchedulerDefaults{
					Shell:    "/bin/bash",
					MailOpts: "NONE",
				},
			},
		},
	}
}

// RootDir returns the default Caelus root: ~/Caelus on Unix-like systems
// and C:\Caelus on Windows.
func RootDir() string {
	if runtime.GOOS == "windows" {
		return `C:\Caelus`
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Caelus"
	}
	return filepath.Join(home, "Caelus")
}

func appDataDir() string {
	if dir := os.Getenv("AppData"); dir != "" {
		return filepath.Join(dir, "Caelus")
	}
	return ""
}

// SearchFiles returns the configuration files present on this system, in
// merge order (lowest precedence first):
//
//	$CAELUSRC_SYSTEM, %AppData%/Caelus/caelus.yaml (Windows),
//	~/Caelus/.caelus.yaml, ~/.caelus.yaml, $CAELUSRC, ./caelus.yaml
func SearchFiles() []string {
	var files []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	add(os.Getenv(rcSystemVar))
	if runtime.GOOS == "windows" {
		if dir := appDataDir(); dir != "" {
			add(filepath.Join(dir, rcFileName))
		}
	}
	add(filepath.Join(RootDir(), "."+rcFileName))
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, "."+rcFileName))
	}
	add(os.Getenv(rcFileVar))
	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, rcFileName))
	}
	return files
}

// LoadFile merges the configuration in path into cfg. Environment variables
// in the file contents are expanded first.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(raw)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Load builds the effective configuration from defaults and every
// configuration file found by SearchFiles. It returns the files applied.
func Load() (*Config, []string, error) {
	cfg := Default()
	files := SearchFiles()
	for _, f := range files {
		if err := LoadFile(cfg, f); err != nil {
			return nil, files, err
		}
	}
	return cfg, files, nil
}
