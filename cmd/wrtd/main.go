// Command wrtd is the CLI boundary around package wrt: a single binary
// with subcommands run/validate/version, grounded on a production interpreter's
// cmd/wazero/wazero.go (flag-package dispatch via flag.Arg(0), the
// doMain(stdOut, stdErr) int testable-entrypoint split). Unlike the
// a production interpreter's compile/run/version split, there is no compile subcommand:
// this module has no JIT/AOT artifact to precompile ahead of time --
// the closest analogue, a decoded+validated ModuleImage, is cached via
// internal/compilationcache instead of exposed as its own CLI verb.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/avrabe/wrt"
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/checkpoint"
	"github.com/avrabe/wrt/internal/compilationcache"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// wrtdVersion is this binary's own version string. This runtime's
// version.GetWazeroVersion() reads build-embedded VCS info; this module
// keeps no equivalent internal/version package, so the string is fixed
// here instead.
const wrtdVersion = "0.1.0"

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "Prints usage.")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		return 0
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "run":
		return doRun(flag.Args()[1:], stdOut, stdErr)
	case "validate":
		return doValidate(flag.Args()[1:], stdOut, stdErr)
	case "version":
		fmt.Fprintln(stdOut, wrtdVersion)
		return 0
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 64
	}
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wrtd is a CLI interface for wrt, a capability-based WebAssembly runtime.")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:")
	fmt.Fprintln(stdErr, "\twrtd <command> [arguments]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "\trun\t\tRuns a module image")
	fmt.Fprintln(stdErr, "\tvalidate\tValidates a module image without running it")
	fmt.Fprintln(stdErr, "\tversion\t\tPrints wrtd's version")
}

// decodeImage unmarshals a ModuleImage from raw bytes. A production
// decoder that accepts raw Wasm binaries is out of scope (spec.md
// §4.G treats ModuleImage as a contract some external decoder
// populates); this CLI decodes the same struct from JSON instead,
// since no third-party binary Wasm decoder exists
// anywhere in this module's dependency surface to ground a real one on.
func decodeImage(data []byte) (*moduleimage.ModuleImage, error) {
	var img moduleimage.ModuleImage
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func doValidate(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	flags.SetOutput(stdErr)
	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")
	_ = flags.Parse(args)

	if help || flags.NArg() == 0 {
		fmt.Fprintln(stdErr, "wrtd validate <module>")
		return 0
	}

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(stdErr, "error reading module:", err)
		return 64
	}
	img, err := decodeImage(data)
	if err != nil {
		fmt.Fprintln(stdErr, "error decoding module:", err)
		return 64
	}
	if err := moduleimage.Validate(img); err != nil {
		fmt.Fprintln(stdErr, "invalid:", err)
		return wrt.ExitCode(err)
	}
	fmt.Fprintln(stdOut, "valid")
	return 0
}

func doRun(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")
	var fuel uint64
	flags.Uint64Var(&fuel, "fuel", 0, "Fuel budget; 0 means unfueled.")
	var maxMemPages uint
	flags.UintVar(&maxMemPages, "max-mem-pages", 0, "Memory budget in 64KiB pages; 0 leaves WRT_BUDGET_MEMORY (or its absence) unchanged.")
	var verifyFlag string
	flags.StringVar(&verifyFlag, "verify", "", "off|basic|sampling|full; empty keeps the profile's default.")
	var checkpointPath string
	flags.StringVar(&checkpointPath, "checkpoint", "", "Directory to persist a checkpoint blob in on fuel exhaustion.")
	var cacheDir string
	flags.StringVar(&cacheDir, "cache-dir", "", "Directory to cache decoded module images in, keyed by content hash.")
	if err := flags.Parse(args); err != nil {
		return 64
	}

	if help || flags.NArg() == 0 {
		fmt.Fprintln(stdErr, "wrtd run <module> [--fuel N] [--max-mem-pages N] [--verify off|basic|sampling|full] [--checkpoint path]")
		return 0
	}

	if maxMemPages > 0 {
		budgetBytes := uint64(maxMemPages) * uint64(linearmemory.PageSize)
		os.Setenv("WRT_BUDGET_"+strings.ToUpper(capability.CrateMemory.String()), strconv.FormatUint(budgetBytes, 10))
	}

	cfg := wrt.NewRuntimeConfig(wrt.ProfileDevelopment)
	if fuel > 0 {
		cfg = cfg.WithInitialFuel(fuel)
	}
	if level, ok := parseVerifyFlag(verifyFlag); ok {
		cfg = cfg.WithVerification(level)
	}
	if checkpointPath != "" {
		cfg = cfg.WithCheckpointDir(checkpointPath)
	}

	modulePath := flags.Arg(0)
	data, err := os.ReadFile(modulePath)
	if err != nil {
		fmt.Fprintln(stdErr, "error reading module:", err)
		return 64
	}
	img, err := loadImageCached(data, cacheDir)
	if err != nil {
		fmt.Fprintln(stdErr, "error decoding module:", err)
		return 64
	}

	runtime := wrt.NewRuntime(cfg)
	inst, err := moduleimage.Instantiate(runtime.Registry(), img, moduleimage.NewLinker(), runtime.Config().Profile().AllowsHeapMemory(), runtime.Config().Verification())
	if err != nil {
		fmt.Fprintln(stdErr, "link error:", err)
		return wrt.ExitCode(err)
	}

	if img.StartFunc < 0 || img.StartFunc >= len(inst.Functions) {
		fmt.Fprintln(stdErr, "module has no start function")
		return 64
	}
	fn := &inst.Functions[img.StartFunc]

	eng, err := runtime.Invoke(inst, fn, nil)
	if err != nil && checkpointPath != "" && werr.Is(err, werr.ErrFuelExhausted) {
		if saveErr := runtime.SaveCheckpoint(checkpoint.Key(modulePath), eng, inst); saveErr != nil {
			fmt.Fprintln(stdErr, "checkpoint save failed:", saveErr)
		}
	}
	if err != nil {
		fmt.Fprintln(stdErr, "error:", err)
		return wrt.ExitCode(err)
	}
	fmt.Fprintln(stdOut, "ok")
	return 0
}

func parseVerifyFlag(v string) (verify.Level, bool) {
	switch strings.ToLower(v) {
	case "off":
		return verify.Off, true
	case "basic":
		return verify.Basic, true
	case "sampling":
		return verify.Sampling(16), true
	case "full":
		return verify.Full, true
	default:
		return verify.Level{}, false
	}
}

// loadImageCached decodes data into a ModuleImage, repurposing
// compilationcache.Cache (same Get/Add/Delete shape a production interpreter uses
// for compiled code) to store the module's raw input bytes under their
// sha256 content hash in cacheDir. A cache hit still decodes the stored
// bytes; no decoded or validated ModuleImage is kept, and nothing here
// validates the image.
func loadImageCached(data []byte, cacheDir string) (*moduleimage.ModuleImage, error) {
	if cacheDir == "" {
		return decodeImage(data)
	}
	cache := compilationcache.NewFileCache(fileCacheContext(cacheDir))
	if cache == nil {
		return decodeImage(data)
	}
	key := compilationcache.Key(sha256.Sum256(data))
	if content, ok, err := cache.Get(key); err == nil && ok {
		defer content.Close()
		if raw, err := io.ReadAll(content); err == nil {
			if img, err := decodeImage(raw); err == nil {
				return img, nil
			}
		}
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	_ = cache.Add(key, strings.NewReader(string(data)))
	return img, nil
}

func fileCacheContext(dir string) context.Context {
	return context.WithValue(context.Background(), compilationcache.FileCachePathKey{}, dir)
}
