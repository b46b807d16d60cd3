// Command zpack compresses and decompresses files with the flate package,
// and compares it with other codecs.
package main

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := NewConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: ", err)
		os.Exit(1)
	}

	// Compressed data may go to stdout.
	logrus.SetOutput(os.Stderr)

	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
		logrus.SetLevel(logrus.DebugLevel)
	}

	displayConfig(cfg)

	if err := cfg.CLI.Ctx.Run(cfg); err != nil {
		logrus.Errorf("%s: %s", cfg.CLI.Ctx.Command(), err)
		os.Exit(1)
	}
}

func displayConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	logrus.Debug("zpack settings:")
	logrus.Debug("  [CLI]")
	logrus.Debugf("  version: %s", VERSION)
	logrus.Debugf("  command: %s", cfg.CLI.Ctx.Command())
	logrus.Debugf("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Debug("")
	logrus.Debug("  [CODEC]")
	logrus.Debugf("  codec.level: %d", *cfg.TOML.Codec.Level)
	logrus.Debugf("  codec.strategy: %s", cfg.TOML.Codec.Strategy)
	logrus.Debugf("  codec.window_bits: %d", cfg.TOML.Codec.WindowBits)
	logrus.Debugf("  codec.format: %s", cfg.TOML.Codec.Format)
	logrus.Debugf("  codec.dictionary: %s", cfg.TOML.Codec.Dictionary)
	logrus.Debugf("  codec.buffer_size: %d", cfg.TOML.Codec.BufferSize)
	logrus.Debug("")
	logrus.Debug("  [BENCH]")
	logrus.Debugf("  bench.codecs: %v", cfg.TOML.Bench.Codecs)
	logrus.Debugf("  bench.iterations: %d", cfg.TOML.Bench.Iterations)
}

// displaySettings dumps the resolved settings for a command.
func displaySettings(verb string, s *Settings) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logged := *s
	logged.Codec.Logger = nil
	logged.Dictionary = nil
	logrus.Debugf("%s settings (dictionary %d bytes): %# v", verb, len(s.Dictionary), pretty.Formatter(logged))
}
