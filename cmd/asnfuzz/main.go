package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	asnfuzz "github.com/thebagchi/asnfuzz-go"
	"github.com/thebagchi/asnfuzz-go/lib/bitbuffer"
	"github.com/thebagchi/asnfuzz-go/lib/fuzz"
	"github.com/thebagchi/asnfuzz-go/lib/ngaplite"
	"github.com/thebagchi/asnfuzz-go/lib/per"
)

var (
	offsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	byteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

type config struct {
	module  string
	schema  string
	root    string
	codec   string
	mode    string
	in      string
	out     string
	hex     bool
	verbose bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.module, "module", ngaplite.Module, "Registered module to fuzz")
	flag.StringVar(&cfg.schema, "schema", "", "Schema descriptor (YAML), overrides -module")
	flag.StringVar(&cfg.root, "root", "", "Root type in the schema descriptor (default: its root)")
	flag.StringVar(&cfg.codec, "codec", "aper", "Codec: aper or uper")
	flag.StringVar(&cfg.mode, "mode", "structure", "Mode: structure, destructure or roundtrip")
	flag.StringVar(&cfg.in, "in", "-", "Input file, - for stdin")
	flag.StringVar(&cfg.out, "out", "", "Output file (default: stdout)")
	flag.BoolVar(&cfg.hex, "hex", false, "Read and write hex text instead of raw bytes")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose logging")
	list := flag.Bool("list", false, "List registered modules and exit")
	flag.Parse()

	if *list {
		for _, name := range fuzz.Modules() {
			fmt.Println(name)
		}
		return
	}

	logger, err := newLogger(cfg.verbose)
	if nil != err {
		fail(err)
	}
	defer logger.Sync()
	fuzz.SetLogger(logger)
	bitbuffer.SetLogger(logger)

	if err := run(cfg, logger); nil != err {
		fail(err)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	os.Exit(1)
}

func harness(cfg config) (*fuzz.Harness, error) {
	codec, err := fuzz.ParseCodec(cfg.codec)
	if nil != err {
		return nil, err
	}
	if cfg.schema == "" {
		return fuzz.Lookup(cfg.module, codec)
	}
	schema, err := asnfuzz.Parse(cfg.schema)
	if nil != err {
		return nil, err
	}
	root := schema.Root
	if cfg.root != "" {
		t, ok := schema.Lookup(cfg.root)
		if !ok {
			return nil, fmt.Errorf("type %q not declared in %s", cfg.root, cfg.schema)
		}
		root = t
	}
	return fuzz.New(root, codec, fuzz.DefaultOptions())
}

func run(cfg config, logger *zap.Logger) error {
	h, err := harness(cfg)
	if nil != err {
		return err
	}
	input, err := read(cfg.in, cfg.hex)
	if nil != err {
		return err
	}
	logger.Debug("loaded input",
		zap.Stringer("harness", h),
		zap.String("mode", cfg.mode),
		zap.Int("bytes", len(input)),
	)

	var output []byte
	switch cfg.mode {
	case "structure":
		output, err = h.StructureBytes(input)
		if nil == err {
			describe(logger, h, output)
		}
	case "destructure":
		describe(logger, h, input)
		output, err = h.DestructureBytes(input)
	case "roundtrip":
		output, err = roundtrip(h, input)
		if nil == err {
			describe(logger, h, output)
		}
	default:
		return fmt.Errorf("unknown mode %q", cfg.mode)
	}
	if nil != err {
		return err
	}
	return write(cfg.out, cfg.hex, output)
}

// roundtrip structures input, destructures the encoding and checks the
// recovered entropy structures to the same encoding.
func roundtrip(h *fuzz.Harness, input []byte) ([]byte, error) {
	encoded, err := h.StructureBytes(input)
	if nil != err {
		return nil, err
	}
	seed, err := h.DestructureBytes(encoded)
	if nil != err {
		return nil, err
	}
	again, err := h.StructureBytes(seed)
	if nil != err {
		return nil, err
	}
	if !bytes.Equal(encoded, again) {
		return nil, fmt.Errorf("round trip mismatch: %x != %x", encoded, again)
	}
	return encoded, nil
}

func describe(logger *zap.Logger, h *fuzz.Harness, encoded []byte) {
	if ce := logger.Check(zap.DebugLevel, "value"); nil != ce {
		value, err := per.Unmarshal(h.Root(), encoded, h.Codec().Aligned())
		if nil != err {
			ce.Write(zap.Error(err))
			return
		}
		ce.Write(zap.String("value", value.Format(h.Root())))
	}
}

func read(path string, text bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if nil != err {
		return nil, err
	}
	if !text {
		return data, nil
	}
	return hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
}

func write(path string, text bool, data []byte) error {
	if text {
		data = []byte(hex.EncodeToString(data) + "\n")
	}
	if path != "" {
		return os.WriteFile(path, data, 0o644)
	}
	if !text && term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(dump(data))
		return nil
	}
	_, err := os.Stdout.Write(data)
	return err
}

// dump renders data 16 bytes per line with an offset column and a printable
// text column.
func dump(data []byte) string {
	var b strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		line := data[offset:min(offset+16, len(data))]
		var digits, text strings.Builder
		for i := range 16 {
			if i == 8 {
				digits.WriteByte(' ')
			}
			if i >= len(line) {
				digits.WriteString("   ")
				continue
			}
			fmt.Fprintf(&digits, "%02x ", line[i])
			if line[i] >= 0x20 && line[i] < 0x7F {
				text.WriteByte(line[i])
			} else {
				text.WriteByte('.')
			}
		}
		b.WriteString(offsetStyle.Render(fmt.Sprintf("%08x", offset)))
		b.WriteString("  ")
		b.WriteString(byteStyle.Render(digits.String()))
		b.WriteString(" |")
		b.WriteString(textStyle.Render(text.String()))
		b.WriteString("|\n")
	}
	return b.String()
}
