package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/andybalholm/zpack/flate"
)

const (
	EnvVarPrefix = "ZPACK"

	DefaultLevel      = 6
	DefaultStrategy   = "default"
	DefaultWindowBits = 15
	DefaultFormat     = "zlib"
	DefaultBufferSize = 64 << 10
	DefaultIterations = 3

	MinBufferSize = 1
	MaxBufferSize = 64 << 20
	MinIterations = 1
	MaxIterations = 1000
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validFormats = map[string]flate.Format{
		"raw":  flate.Raw,
		"zlib": flate.Zlib,
	}

	validCodecs = map[string]struct{}{
		"zpack":  {},
		"flate":  {},
		"zstd":   {},
		"brotli": {},
		"snappy": {},
		"lz4":    {},
	}
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Codec *TOMLCodec `toml:"codec"`
	Bench *TOMLBench `toml:"bench"`
}

type TOMLCodec struct {
	Level      *int   `toml:"level"`
	Strategy   string `toml:"strategy"`
	WindowBits int    `toml:"window_bits"`
	Format     string `toml:"format"`
	Dictionary string `toml:"dictionary"`
	BufferSize int    `toml:"buffer_size"`
}

type TOMLBench struct {
	Codecs     []string `toml:"codecs"`
	Iterations int      `toml:"iterations"`
}

// CodecFlags are the codec settings shared by every command. Zero values
// (and -1 for the level) defer to the config file.
type CodecFlags struct {
	Level      int    `kong:"help='Compression level, 0-9',short='l',default='-1'"`
	Strategy   string `kong:"help='Strategy: default, filtered, huffman-only, rle or fixed',short='s'"`
	WindowBits int    `kong:"help='Base-2 log of the window size, 8-15',short='w'"`
	Format     string `kong:"help='Framing: raw or zlib',short='f'"`
	Dictionary string `kong:"help='Preset dictionary file',type='path',short='D'"`
}

type CompressCmd struct {
	CodecFlags

	Input  string `kong:"arg,optional,help='File to compress (default stdin)',type='path'"`
	Output string `kong:"help='Output file (default stdout)',short='o',type='path'"`
	Text   bool   `kong:"help='Write the LZ77 parse as text instead of compressed data',short='t'"`
}

type DecompressCmd struct {
	CodecFlags

	Input  string `kong:"arg,optional,help='File to decompress (default stdin)',type='path'"`
	Output string `kong:"help='Output file (default stdout)',short='o',type='path'"`
}

type BenchCmd struct {
	CodecFlags

	Files  []string `kong:"arg,help='Files to compress'"`
	Codecs []string `kong:"help='Codecs to compare',short='C'"`
}

type CLI struct {
	ConfigFile string `kong:"help='Path to a TOML file with codec defaults',type='path',short='c'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Compress   CompressCmd   `kong:"cmd,help='Compress a file'"`
	Decompress DecompressCmd `kong:"cmd,help='Decompress a file'"`
	Bench      BenchCmd      `kong:"cmd,help='Compare ratio and speed with other codecs'"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

// Settings are the resolved codec settings for one command.
type Settings struct {
	Codec      flate.Config
	Dictionary []byte
	BufferSize int
}

func NewConfig(args []string, options ...kong.Option) (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs(args, options...)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	return &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}, nil
}

func readCLIArgs(args []string, options ...kong.Option) (*CLI, error) {
	cli := &CLI{}
	options = append([]kong.Option{
		kong.Name("zpack"),
		kong.Description("Streaming DEFLATE and zlib compressor"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		},
	}, options...)

	parser, err := kong.New(cli, options...)
	if err != nil {
		return nil, errors.Wrap(err, "error building CLI parser")
	}

	cli.Ctx, err = parser.Parse(args)
	if err != nil {
		return nil, err
	}

	if err := validateCLIArgs(cli); err != nil {
		return nil, errors.Wrap(err, "error validating args")
	}

	return cli, nil
}

// readTOML loads the config file, if there is one, and fills in defaults.
func readTOML(file string) (*TOML, error) {
	tomlConfig := &TOML{}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "error reading file")
		}

		if err := toml.Unmarshal(data, tomlConfig); err != nil {
			return nil, errors.Wrap(err, "error parsing TOML config")
		}
	}

	if err := setTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	if err := validateTOML(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error validating TOML config")
	}

	return tomlConfig, nil
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Codec == nil {
		t.Codec = &TOMLCodec{}
	}

	if t.Bench == nil {
		t.Bench = &TOMLBench{}
	}

	// Set defaults for [codec]
	if t.Codec.Level == nil {
		level := DefaultLevel
		t.Codec.Level = &level
	}

	if t.Codec.Strategy == "" {
		t.Codec.Strategy = DefaultStrategy
	}

	if t.Codec.WindowBits == 0 {
		t.Codec.WindowBits = DefaultWindowBits
	}

	if t.Codec.Format == "" {
		t.Codec.Format = DefaultFormat
	}

	if t.Codec.BufferSize == 0 {
		t.Codec.BufferSize = DefaultBufferSize
	}

	// Set defaults for [bench]
	if len(t.Bench.Codecs) == 0 {
		t.Bench.Codecs = []string{"zpack", "flate", "zstd", "brotli", "snappy", "lz4"}
	}

	if t.Bench.Iterations == 0 {
		t.Bench.Iterations = DefaultIterations
	}

	return nil
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if err := validateTOMLCodec(t.Codec); err != nil {
		return errors.Wrap(err, "codec error(s)")
	}

	if err := validateTOMLBench(t.Bench); err != nil {
		return errors.Wrap(err, "bench error(s)")
	}

	return nil
}

func validateTOMLCodec(c *TOMLCodec) error {
	if c == nil {
		return errors.New("codec cannot be empty")
	}

	if c.Level == nil || *c.Level < flate.NoCompression || *c.Level > flate.BestCompression {
		return errors.Errorf("codec.level must be between %d and %d", flate.NoCompression, flate.BestCompression)
	}

	if _, err := flate.ParseStrategy(c.Strategy); err != nil {
		return errors.Wrap(err, "codec.strategy is invalid")
	}

	if c.WindowBits < 8 || c.WindowBits > 15 {
		return errors.New("codec.window_bits must be between 8 and 15")
	}

	if _, ok := validFormats[c.Format]; !ok {
		return errors.Errorf("codec.format %s is invalid", c.Format)
	}

	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		return errors.Errorf("codec.buffer_size must be between %d and %d", MinBufferSize, MaxBufferSize)
	}

	return nil
}

func validateTOMLBench(b *TOMLBench) error {
	if b == nil {
		return errors.New("bench cannot be empty")
	}

	if err := validateCodecNames(b.Codecs); err != nil {
		return errors.Wrap(err, "bench.codecs is invalid")
	}

	if b.Iterations < MinIterations || b.Iterations > MaxIterations {
		return errors.Errorf("bench.iterations must be between %d and %d", MinIterations, MaxIterations)
	}

	return nil
}

func validateCodecNames(names []string) error {
	for _, name := range names {
		if _, ok := validCodecs[name]; !ok {
			return errors.Errorf("unknown codec %s", name)
		}
	}

	return nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateCodecNames(cli.Bench.Codecs); err != nil {
		return errors.Wrap(err, "--codecs is invalid")
	}

	return nil
}

// Resolve merges flags over the config file and validates the result.
func (c *Config) Resolve(f CodecFlags) (*Settings, error) {
	codec := *c.TOML.Codec

	if f.Level != -1 {
		level := f.Level
		codec.Level = &level
	}

	if f.Strategy != "" {
		codec.Strategy = f.Strategy
	}

	if f.WindowBits != 0 {
		codec.WindowBits = f.WindowBits
	}

	if f.Format != "" {
		codec.Format = f.Format
	}

	if f.Dictionary != "" {
		codec.Dictionary = f.Dictionary
	}

	if err := validateTOMLCodec(&codec); err != nil {
		return nil, errors.Wrap(err, "invalid codec settings")
	}

	strategy, _ := flate.ParseStrategy(codec.Strategy)
	s := &Settings{
		Codec: flate.Config{
			Level:      *codec.Level,
			Strategy:   strategy,
			WindowBits: codec.WindowBits,
			Format:     validFormats[codec.Format],
		},
		BufferSize: codec.BufferSize,
	}

	if codec.Dictionary != "" {
		dict, err := os.ReadFile(codec.Dictionary)
		if err != nil {
			return nil, errors.Wrap(err, "error reading dictionary")
		}
		s.Dictionary = dict
	}

	return s, nil
}
