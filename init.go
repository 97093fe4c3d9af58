package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/phobologic/macroindex/internal/config"
)

const configHeader = `# macroindex configuration.
#
# Command-line flags override these values: -I and -isystem append to the
# include directories, -D adds to the defines, and the other flags replace the
# value they name. Paths are relative to the working directory.

`

// runInit implements the `macroindex init` subcommand, which writes a config
// file holding the built-in defaults.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("macroindex init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun, force bool
	fs.BoolVar(&dryRun, "dry-run", false, "print the config instead of writing it")
	fs.BoolVar(&force, "force", false, "overwrite an existing config file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: macroindex init [flags] [path]

Write a macroindex config file with the default settings. The file is read
automatically when it is named %s and lives in the working directory;
otherwise pass it with -config.

path defaults to ./%s.

Flags:
`, config.DefaultPath, config.DefaultPath)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	content, err := generateConfig()
	if err != nil {
		return err
	}

	if dryRun {
		_, _ = fmt.Fprint(stdout, content)
		return nil
	}

	path := config.DefaultPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote macroindex config to %s\n", path)
	return nil
}

// generateConfig returns the commented default config file.
func generateConfig() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := config.Encode(&buf, config.Default()); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}
