// Package media generates and edits images and synthesises speech, saving
// every artifact to disk before it is uploaded to Discord.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadBytes is Discord's attachment limit for regular users.
const MaxUploadBytes = 25 << 20

var (
	ErrTooLarge       = errors.New("file exceeds Discord's 25MB limit")
	ErrUnknownBackend = errors.New("unknown media backend")
	ErrNoImage        = errors.New("response contained no image")
)

// Image is generated or edited picture data.
type Image struct {
	Data    []byte
	MIME    string
	Caption string
}

// Generator turns a prompt into an image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Image, error)
}

// Editor modifies an existing image according to a prompt.
type Editor interface {
	Edit(ctx context.Context, prompt string, src Image) (Image, error)
}

// Artifact is a file written under the data directory.
type Artifact struct {
	Path    string
	Caption string
	Size    int64
}

// Writer stores artifacts with timestamped names.
type Writer struct {
	Dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "data"
	}
	return &Writer{Dir: dir, now: time.Now}
}

// Save writes data to <Dir>/<kind>/<prefix>_<timestamp><ext>.
func (w *Writer) Save(kind, prefix, ext string, data []byte) (Artifact, error) {
	if len(data) > MaxUploadBytes {
		return Artifact{}, fmt.Errorf("%w: %.2fMB", ErrTooLarge, float64(len(data))/(1<<20))
	}
	dir := filepath.Join(w.Dir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s%s", prefix, w.now().Format("20060102_150405.000"), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Artifact{Path: path, Size: int64(len(data))}, nil
}

// CheckUpload rejects files Discord would refuse.
func CheckUpload(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() > MaxUploadBytes {
		return info.Size(), fmt.Errorf("%w: %.2fMB", ErrTooLarge, float64(info.Size())/(1<<20))
	}
	return info.Size(), nil
}

// ExtensionFor maps an image MIME type to a file extension.
func ExtensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".png"
	}
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxUploadBytes {
		return nil, "", ErrTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func httpClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: timeout}
}
