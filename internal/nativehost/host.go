package nativehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/roach88/syndicate/internal/assets"
)

// Request is one inbound message from the extension.
type Request struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Data      string `json:"data,omitempty"` // base64, writeFile only
	Directory string `json:"directory,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// FileInfo describes one entry in a listFiles response.
type FileInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"` // unix seconds
}

// Response is the union of all reply shapes. Failures travel in-band in
// Error; the frame stream itself only breaks on transport problems.
type Response struct {
	Error string `json:"error,omitempty"`

	// getFile
	Data     string `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int    `json:"size,omitempty"`

	// writeFile
	Success bool   `json:"success,omitempty"`
	Path    string `json:"path,omitempty"`

	// listFiles
	Files []FileInfo `json:"files,omitempty"`
	Count int        `json:"count,omitempty"`

	// ping
	Pong bool `json:"pong,omitempty"`
}

// Host answers file-bridge requests from the extension over one frame
// stream. The extension has no filesystem access of its own; everything
// it stages or saves goes through here.
type Host struct {
	fs  afero.Fs
	log *slog.Logger
}

// NewHost creates a Host over the given filesystem.
func NewHost(fs afero.Fs, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{fs: fs, log: log}
}

// Serve processes frames until the stream ends or the context is
// canceled. A malformed frame ends the stream; a failed request does
// not, it is answered in-band.
func (h *Host) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	h.log.Info("file bridge started")
	defer h.log.Info("file bridge stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var req Request
		if err := DecodeFrame(r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("bridge read: %w", err)
		}
		h.log.Info("bridge request", "type", req.Type)

		resp := h.handle(req)
		if resp.Error != "" {
			h.log.Warn("bridge request failed", "type", req.Type, "error", resp.Error)
		}
		if err := WriteFrame(w, resp); err != nil {
			return fmt.Errorf("bridge write: %w", err)
		}
	}
}

func (h *Host) handle(req Request) Response {
	switch req.Type {
	case "getFile":
		return h.getFile(req.Path)
	case "writeFile":
		return h.writeFile(req.Path, req.Data)
	case "listFiles":
		return h.listFiles(req.Directory, req.Pattern)
	case "ping":
		return Response{Pong: true}
	default:
		return Response{Error: fmt.Sprintf("unknown message type: %s", req.Type)}
	}
}

func (h *Host) getFile(path string) Response {
	exists, err := afero.Exists(h.fs, path)
	if err == nil && !exists {
		return Response{Error: fmt.Sprintf("file not found: %s", path)}
	}

	p, err := assets.ReadPayload(h.fs, path)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{
		Data:     p.Data,
		Filename: p.Filename,
		MimeType: p.MimeType,
		Size:     p.Size,
	}
}

func (h *Host) writeFile(path, dataBase64 string) Response {
	n, err := assets.WritePayload(h.fs, path, dataBase64)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Path: path, Size: n}
}

func (h *Host) listFiles(dir, pattern string) Response {
	if pattern == "" {
		pattern = "*"
	}

	exists, err := afero.DirExists(h.fs, dir)
	if err != nil || !exists {
		return Response{Error: fmt.Sprintf("directory not found: %s", dir)}
	}

	matches, err := afero.Glob(h.fs, filepath.Join(dir, pattern))
	if err != nil {
		return Response{Error: err.Error()}
	}

	files := make([]FileInfo, 0, len(matches))
	for _, m := range matches {
		info, err := h.fs.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Path:     m,
			Name:     info.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().Unix(),
		})
	}
	return Response{Files: files, Count: len(files)}
}
