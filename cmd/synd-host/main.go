// synd-host is the Chrome native-messaging host that gives the capture
// extension filesystem access. Chrome launches it with the extension's
// stdin/stdout wired to the frame stream; it exits when the stream ends.
//
// Stdout belongs to the protocol, so logs go to a file next to the
// executable.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/roach88/syndicate/internal/nativehost"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "synd-host: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, closeLog, err := openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	host := nativehost.NewHost(afero.NewOsFs(), log)
	return host.Serve(context.Background(), os.Stdin, os.Stdout)
}

func openLogger() (*slog.Logger, func(), error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("locate executable: %w", err)
	}

	path := filepath.Join(filepath.Dir(exe), "synd-host.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log := slog.New(slog.NewTextHandler(f, nil))
	return log, func() { f.Close() }, nil
}
