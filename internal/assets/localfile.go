package assets

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"
)

// Payload is a staged file encoded for transport to the browser-extension
// side of the bridge, which cannot touch the filesystem directly.
type Payload struct {
	Data     string `json:"data"` // base64
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// ReadPayload loads a local file and encodes it as a transport payload.
// The mime type is guessed from the extension; unknown extensions fall
// back to application/octet-stream.
func ReadPayload(fs afero.Fs, path string) (Payload, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Payload{}, fmt.Errorf("read payload %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Payload{
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Size:     len(data),
	}, nil
}

// WritePayload decodes base64 data and writes it to path, creating parent
// directories as needed. Returns the number of bytes written.
func WritePayload(fs afero.Fs, path, dataBase64 string) (int, error) {
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return 0, fmt.Errorf("decode payload for %s: %w", path, err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write payload %s: %w", path, err)
	}
	return len(data), nil
}
