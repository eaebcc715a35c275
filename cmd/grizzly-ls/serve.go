package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Biometria-se/grizzly-lsp/internal/config"
	"github.com/Biometria-se/grizzly-lsp/internal/inventory"
	"github.com/Biometria-se/grizzly-lsp/internal/loader"
	"github.com/Biometria-se/grizzly-lsp/internal/logging"
	"github.com/Biometria-se/grizzly-lsp/internal/pattern"
	"github.com/Biometria-se/grizzly-lsp/internal/rpc"
	"github.com/Biometria-se/grizzly-lsp/internal/server"
	"github.com/Biometria-se/grizzly-lsp/internal/telemetry"
)

// buildVersion is overridden at release build time via -ldflags, gating
// workspaces that declare a min_core_version.
var buildVersion = ""

func bootstrapLogger(cmd *cobra.Command, args []string) error {
	ws := flagWorkspace
	if ws == "" {
		if wd, err := os.Getwd(); err == nil {
			ws = wd
		}
	}
	if _, err := logging.Init(logging.Options{Verbose: flagVerbose, Workspace: ws}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ws := flagWorkspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving workspace: %w", err)
		}
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}

	log := logging.Named("cli").Sugar()
	log.Infow("starting grizzly-ls", "workspace", ws, "version", buildVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, stopping grizzly-ls")
		cancel()
	}()

	cfgPath := filepath.Join(ws, "pyproject.toml")
	if _, statErr := os.Stat(cfgPath); statErr != nil {
		cfgPath = ""
	}
	cfgWatcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer cfgWatcher.Close()

	if err := telemetry.Init(telemetry.Options{Enabled: false}); err != nil {
		log.Warnw("telemetry init failed, continuing without crash reporting", "error", err)
	}
	defer telemetry.Flush()

	sources := server.LoaderSources{
		Runner:     loader.NewExecutor(),
		PythonPath: "python3",
		WorkDir:    ws,
		ModulePath: "steps",
		Types:      pattern.ParseTypeRegistry{},
	}
	srv := server.New(inventory.New(), cfgWatcher, sources, filepath.Join(ws, "payloads"), buildVersion)
	srv.OnProgress(func(token, stage, message string) {
		log.Infow("rebuild progress", "token", token, "stage", stage, "message", message)
	})

	if err := srv.Rebuild(ctx); err != nil {
		log.Errorw("initial inventory rebuild failed; serving with an empty inventory", "error", err)
	}

	rw, err := openTransport()
	if err != nil {
		return err
	}
	defer rw.Close()

	log.Info("grizzly-ls ready, serving requests")
	if err := Serve(ctx, srv, rpc.NewCodec(rw, rw), log.Desugar()); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve loop: %w", err)
	}
	log.Info("grizzly-ls stopped")
	return nil
}

// transport is a bidirectional byte stream with a single Close, the shape
// every supported transport (stdio, Unix socket, TCP) reduces to.
type transport struct {
	io.Reader
	io.Writer
	io.Closer
}

func openTransport() (transport, error) {
	switch {
	case flagSocket != "":
		conn, err := net.Dial("unix", flagSocket)
		if err != nil {
			return transport{}, fmt.Errorf("dialing socket %s: %w", flagSocket, err)
		}
		return transport{Reader: conn, Writer: conn, Closer: conn}, nil
	case flagHost != "" || flagPort != 0:
		addr := fmt.Sprintf("%s:%d", flagHost, flagPort)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return transport{}, fmt.Errorf("dialing %s: %w", addr, err)
		}
		return transport{Reader: conn, Writer: conn, Closer: conn}, nil
	default:
		return transport{Reader: os.Stdin, Writer: os.Stdout, Closer: noopCloser{}}, nil
	}
}

// noopCloser leaves stdin/stdout open on Close; the OS reclaims them at
// process exit, and closing them mid-shutdown would race the signal
// handler's own os.Exit path.
type noopCloser struct{}

func (noopCloser) Close() error { return nil }
