// Package images serves replacement firmware to plugs. Images may be stored
// raw or xz compressed; either way they are served raw with an exact
// Content-Length, which the bootstrap firmware depends on.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/golang/glog"
	"github.com/ulikunitz/xz"
)

func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "plugstrap", "images")
}

// Load reads an image, decompressing it if the name ends in .xz.
func Load(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !strings.HasSuffix(p, ".xz") {
		return io.ReadAll(f)
	}
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", p, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not decompress %s: %w", p, err)
	}
	return data, nil
}

// Find loads the image for a request path from dir, preferring the raw
// file over a compressed one.
func Find(dir, urlPath string) ([]byte, error) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		return nil, os.ErrNotExist
	}
	base := filepath.Join(dir, filepath.FromSlash(clean))
	for _, p := range []string{base, base + ".xz"} {
		data, err := Load(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return data, err
	}
	return nil, os.ErrNotExist
}

// Handler serves images from dir.
func Handler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		glog.Infof("%s %s %s", r.RemoteAddr, r.Method, r.URL.Path)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "bad method", http.StatusBadRequest)
			return
		}
		data, err := Find(dir, r.URL.Path)
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			glog.Errorf("Could not load %s: %v", r.URL.Path, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, path.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
	})
}
