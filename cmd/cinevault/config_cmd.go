// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/cinevault/internal/config"
	"github.com/ManuGH/cinevault/internal/version"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = config.EnvPrefix + "CONFIG"
	defaultConfigFile = "config.yaml"
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:])
	case "dump":
		return runConfigDump(args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage()
		return 2
	}
}

func printConfigUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  cinevault config validate [--file|-f config.yaml]")
	fmt.Fprintln(os.Stderr, "  cinevault config dump [--file|-f config.yaml] [--format=yaml|json]")
}

// resolveDefaultConfigPath prefers $CINEVAULT_CONFIG, then ./config.yaml if present.
func resolveDefaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func configFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func runConfigValidate(args []string) int {
	fs, file := configFlags("cinevault config validate")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		path = resolveDefaultConfigPath()
	}

	if _, err := config.NewLoader(path, version.Version).Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", displayPath(path), err)
		return 1
	}

	fmt.Printf("%s is valid\n", displayPath(path))
	return 0
}

func runConfigDump(args []string, out io.Writer) int {
	fs, file := configFlags("cinevault config dump")
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		path = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", displayPath(path), err)
		return 1
	}
	redactSecrets(&cfg)

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unsupported format: %s (use yaml or json)\n", *format)
		return 2
	}
}

func displayPath(path string) string {
	if path == "" {
		return "environment+defaults"
	}
	return path
}

func redactSecrets(cfg *config.AppConfig) {
	for _, s := range []*string{
		&cfg.Storage.S3.SecretAccessKey,
		&cfg.Storage.FS.SigningKey,
		&cfg.Jobs.Redis.Password,
		&cfg.Auth.JWTSecret,
		&cfg.Auth.AdminToken,
	} {
		if *s != "" {
			*s = "***"
		}
	}
}
