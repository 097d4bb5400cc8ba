// zerialize - cross-format serialization CLI
//
// Usage:
//
//	zerialize translate [--from F] [--to T] [-o out] [file]  Re-encode a document
//	zerialize dump [--from F] [file]                         Print a document tree
//	zerialize formats                                        List registered formats
//	zerialize stream encode [--to T] [file]                  Frame JSON lines
//	zerialize stream decode [file]                           Print framed documents
//	zerialize version                                        Print version info
//
// Global flags --config PATH and --verbose may appear anywhere. If no file
// is given, input is read from stdin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const libVersion = "0.1.0"

// errUsage marks errors already reported with usage text.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "zerialize: %v\n", err)
		}
		os.Exit(1)
	}
}

// env carries the process streams and shared settings into commands.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    Config
	log    zerolog.Logger
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfgPath, args := configFlag(args)
	verbose := false
	rest := args[:0:0]
	for _, a := range args {
		if a == "--verbose" || a == "-verbose" {
			verbose = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return errUsage
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	e := &env{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		log:    newLogger(stderr, verbose),
	}
	e.log.Debug().Str("config", cfgPath).Strs("args", rest).Msg("starting")

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "translate":
		return e.translate(cmdArgs)
	case "dump":
		return e.dump(cmdArgs)
	case "formats":
		return e.formats()
	case "stream":
		if len(cmdArgs) == 0 {
			fmt.Fprintln(stderr, "zerialize stream: missing subcommand (encode, decode)")
			return errUsage
		}
		switch cmdArgs[0] {
		case "encode":
			return e.streamEncode(cmdArgs[1:])
		case "decode":
			return e.streamDecode(cmdArgs[1:])
		default:
			fmt.Fprintf(stderr, "zerialize stream: unknown subcommand: %s\n", cmdArgs[0])
			return errUsage
		}
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "zerialize %s\n", libVersion)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `zerialize - cross-format serialization tool

Usage:
  zerialize translate [--from F] [--to T] [-o out] [file]  Re-encode a document
  zerialize dump [--from F] [file]                         Print a document tree
  zerialize formats                                        List registered formats
  zerialize stream encode [--to T] [file]                  Frame JSON lines
  zerialize stream decode [file]                           Print framed documents
  zerialize version                                        Print version info

Global flags:
  --config PATH   TOML config (default: ./zerialize.toml if present)
  --verbose       Debug logging (otherwise $ZERIALIZE_LOG_LEVEL, default warn)

If no file is given, reads from stdin.

Examples:
  echo '{"name":"James Bond","age":37}' | zerialize translate --to msgpack > bond.mp
  zerialize dump --from msgpack bond.mp
  # Output: {"name": "James Bond", "age": 37}
`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("zerialize "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
