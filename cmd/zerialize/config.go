package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Neumenon/zerialize/zera"
)

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "zerialize.toml"

// Config is the on-disk CLI configuration.
type Config struct {
	Defaults Defaults `toml:"defaults"`
}

// Defaults hold fallback values for command flags.
type Defaults struct {
	From     string `toml:"from"`
	To       string `toml:"to"`
	Align    int    `toml:"align"`
	Indent   string `toml:"indent"`
	CRC      bool   `toml:"crc"`
	Compress int    `toml:"compress"` // zstd level, 0 disables
}

func defaultConfig() Config {
	return Config{Defaults: Defaults{From: "json", To: "zera"}}
}

// loadConfig reads path over the built-in defaults. An empty path reads
// defaultConfigPath if present.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return defaultConfig(), nil
		}
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	d := c.Defaults
	if strings.TrimSpace(d.From) == "" {
		return errors.New("defaults.from is empty")
	}
	if strings.TrimSpace(d.To) == "" {
		return errors.New("defaults.to is empty")
	}
	if d.Align != 0 && !zera.ValidAlignment(d.Align) {
		return fmt.Errorf("defaults.align %d is not a power of two in [1, %d]", d.Align, zera.MaxAlignment)
	}
	if d.Compress < 0 || d.Compress > 22 {
		return fmt.Errorf("defaults.compress %d is outside [0, 22]", d.Compress)
	}
	return nil
}

// configFlag extracts --config from args before subcommand parsing.
func configFlag(args []string) (string, []string) {
	out := make([]string, 0, len(args))
	path := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "--config="):
			path = strings.TrimPrefix(a, "--config=")
		default:
			out = append(out, a)
		}
	}
	return path, out
}

// envLookup is replaced in tests.
var envLookup = os.LookupEnv
