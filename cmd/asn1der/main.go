package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	asn1der "github.com/thebagchi/asn1der-go"
	"github.com/thebagchi/asn1der-go/lib/config"
	"github.com/thebagchi/asn1der-go/lib/value"
)

const VERSION = "0.1.0"

const usage = `Usage:
  asn1der encode [flags] [value-file|-]   encode a value document as DER
  asn1der types [flags]                   list the types of a schema
  asn1der version                         print the version

Flags:
`

// command holds the streams a command runs against.
type command struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	c := &command{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(os.Args[1:]); nil != err {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}
}

func (c *command) run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usage)
		return errors.New("command required: encode, types or version")
	}
	switch args[0] {
	case "encode":
		return c.encode(args[1:])
	case "types":
		return c.types(args[1:])
	case "version", "--version":
		fmt.Fprintln(c.stdout, "asn1der", VERSION)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// options are the flags shared by every command.
type options struct {
	flags    *pflag.FlagSet
	config   string
	schema   string
	logLevel string
}

func (c *command) newFlagSet(name string) *options {
	o := &options{flags: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	o.flags.SetOutput(c.stderr)
	o.flags.Usage = func() {
		fmt.Fprint(c.stderr, usage)
		o.flags.PrintDefaults()
	}
	o.flags.StringVar(&o.config, "config", "", "config file (default: $"+config.ENV_CONFIG+")")
	o.flags.StringVarP(&o.schema, "schema", "s", "", "schema document")
	o.flags.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	return o
}

// load resolves the configuration: an explicit --config file, else the file
// named by the environment, else defaults. Flags given on the command line
// override it.
func (o *options) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case o.config != "":
		cfg, err = config.LoadFile(o.config)
	case os.Getenv(config.ENV_CONFIG) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if nil != err {
		return nil, err
	}
	if o.flags.Changed("schema") {
		cfg.Schema = o.schema
	}
	if o.flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if os.Getenv("ASN1DER_DEBUG") != "" {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (c *command) logger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if nil != err {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level})), nil
}

func (c *command) encode(args []string) error {
	o := c.newFlagSet("encode")
	var typeName, format, output string
	o.flags.StringVarP(&typeName, "type", "t", "", "schema type to encode")
	o.flags.StringVarP(&format, "format", "f", "", "value format: yaml, json or cbor (default: from file extension)")
	o.flags.StringVarP(&output, "output", "o", "", "output: hex, raw or auto")
	if err := o.flags.Parse(args); nil != err {
		return err
	}

	cfg, err := o.load()
	if nil != err {
		return err
	}
	if o.flags.Changed("type") {
		cfg.Type = typeName
	}
	if o.flags.Changed("format") {
		cfg.InputFormat = format
	}
	if o.flags.Changed("output") {
		cfg.Output = config.Output(output)
	}
	if err := cfg.Validate(); nil != err {
		return err
	}
	if cfg.Schema == "" {
		return errors.New("schema required: use --schema or set schema in the config file")
	}
	if cfg.Type == "" {
		return errors.New("type required: use --type or set type in the config file")
	}
	if o.flags.NArg() > 1 {
		return fmt.Errorf("unexpected argument: %s", o.flags.Arg(1))
	}

	logger, err := c.logger(cfg)
	if nil != err {
		return err
	}
	s, err := asn1der.ParseSchema(cfg.Schema, logger)
	if nil != err {
		return err
	}

	path := o.flags.Arg(0)
	v, err := c.readValue(path, cfg.InputFormat)
	if nil != err {
		return err
	}
	logger.Debug("encoding value", "schema", cfg.Schema, "type", cfg.Type, "input", path)

	encoded, err := s.Encode(cfg.Type, v)
	if nil != err {
		return fmt.Errorf("encoding %s: %w", cfg.Type, err)
	}
	logger.Info("encoded value", "type", cfg.Type, "octets", len(encoded))
	return c.write(encoded, cfg.Output)
}

// readValue decodes the value document at path, or standard input when
// path is empty or "-".
func (c *command) readValue(path, name string) (any, error) {
	format, err := value.ParseFormat(name)
	if nil != err {
		return nil, err
	}
	if path == "" || path == "-" {
		data, err := io.ReadAll(c.stdin)
		if nil != err {
			return nil, fmt.Errorf("reading standard input: %w", err)
		}
		return value.Decode(data, format)
	}
	if name == "" {
		if detected, err := value.FormatFromPath(path); nil == err {
			format = detected
		}
	}
	return value.Load(path, format)
}

func (c *command) write(encoded []byte, output config.Output) error {
	if output == config.OutputAuto {
		output = config.OutputRaw
		if f, ok := c.stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			output = config.OutputHex
		}
	}
	if output == config.OutputHex {
		_, err := fmt.Fprintln(c.stdout, hex.EncodeToString(encoded))
		return err
	}
	_, err := c.stdout.Write(encoded)
	return err
}

func (c *command) types(args []string) error {
	o := c.newFlagSet("types")
	if err := o.flags.Parse(args); nil != err {
		return err
	}
	cfg, err := o.load()
	if nil != err {
		return err
	}
	if err := cfg.Validate(); nil != err {
		return err
	}
	if cfg.Schema == "" {
		return errors.New("schema required: use --schema or set schema in the config file")
	}
	logger, err := c.logger(cfg)
	if nil != err {
		return err
	}
	s, err := asn1der.ParseSchema(cfg.Schema, logger)
	if nil != err {
		return err
	}
	for _, name := range s.Names() {
		fmt.Fprintf(c.stdout, "%-24s %s\n", name, s.Kind(name))
	}
	return nil
}
