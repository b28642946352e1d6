package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/shardlight/kvbridge/engine"
	"github.com/shardlight/kvbridge/shim"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to guest wasm module")
		funcName    = flag.String("func", "_start", "Guest function to call")
		dbDir       = flag.String("db", "", "Database directory preopened for the guest")
		benchOps    = flag.Int("bench", 0, "Run a create/use/destroy workload of N operations and exit")
		benchProcs  = flag.Int("workers", 8, "Worker pool size for -bench")
		interactive = flag.Bool("i", false, "Interactive handle inspector (TUI)")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" && *benchOps == 0 && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: kvbridge -wasm <guest.wasm> [-db dir] [-func name]")
		fmt.Fprintln(os.Stderr, "       kvbridge -bench <ops> [-workers n]")
		fmt.Fprintln(os.Stderr, "       kvbridge -wasm <guest.wasm> -i  (interactive inspector)")
		os.Exit(1)
	}

	logger := newLogger(*verbose, *interactive)
	defer logger.Sync()
	engine.SetLogger(logger)

	s := shim.New(logger)
	defer s.Close()

	if *benchOps > 0 {
		if err := runBench(s, logger, *benchProcs, *benchOps); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(s, *wasmFile, *funcName, *dbDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(s, *wasmFile, *funcName, *dbDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a console logger. The inspector owns the terminal,
// so interactive mode logs nothing to stdout.
func newLogger(verbose, interactive bool) *zap.Logger {
	if interactive {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// run executes a guest with the shim host module mounted.
func run(s *shim.Shim, wasmFile, funcName, dbDir string) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read guest: %w", err)
	}

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	if _, err := s.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("mount shim: %w", err)
	}

	// When a database dir is given the host opens it and hands the guest
	// a ready handle via an environment-free convention: the guest calls
	// db_open itself with the path it expects, so nothing extra is
	// wired here beyond making sure the directory exists.
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}

	// An empty start-function list keeps a wasi command guest's _start
	// from running during instantiation; it is invoked exactly once
	// below, under the same error handling as any other entry point.
	mod, err := r.InstantiateWithConfig(ctx, data, wazero.NewModuleConfig().WithStartFunctions())
	if err != nil {
		return fmt.Errorf("instantiate guest: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		if funcName == "_start" {
			// Reactor-style guests export nothing to run.
			return nil
		}
		return fmt.Errorf("guest does not export %q", funcName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return guestCallError(funcName, err)
	}
	if len(results) > 0 {
		fmt.Printf("%s -> %d\n", funcName, results[0])
	}
	return nil
}

// guestCallError classifies a guest invocation failure. A proc_exit
// with status zero is a normal command exit, not an error.
func guestCallError(funcName string, err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("guest exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("guest %s: %w", funcName, err)
}
