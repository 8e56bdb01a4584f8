//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// ONNXRuntimeVersion matches the onnxruntime_go version used by fastembed-go.
const ONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX runtime release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var onnxPlatforms = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

// onnxReleaseURL is a variable so tests can point at a local server.
var onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s.tgz"

var onnxInstallMu sync.Mutex

func onnxLibraryName() string {
	if runtime.GOOS == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// ONNXInstallDir is where a managed ONNX runtime is installed.
func ONNXInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "worken", "lib")
}

// ONNXLibraryPath returns ONNX_PATH, else the managed install if present, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(ONNXInstallDir(), onnxLibraryName())
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// EnsureONNXRuntime returns the ONNX runtime path, downloading it on first use.
// The path is exported as ONNX_PATH, which fastembed-go reads.
func EnsureONNXRuntime(ctx context.Context) (string, error) {
	onnxInstallMu.Lock()
	defer onnxInstallMu.Unlock()

	path := ONNXLibraryPath()
	if path == "" {
		if err := InstallONNXRuntime(ctx, ONNXInstallDir()); err != nil {
			return "", fmt.Errorf("installing ONNX runtime (set ONNX_PATH to use an existing one): %w", err)
		}
		path = filepath.Join(ONNXInstallDir(), onnxLibraryName())
	}
	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", err
	}
	return path, nil
}

// InstallONNXRuntime downloads the runtime for this platform into destDir.
func InstallONNXRuntime(ctx context.Context, destDir string) error {
	platform, ok := onnxPlatforms[runtime.GOOS+"/"+runtime.GOARCH]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, ONNXRuntimeVersion, platform), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, ONNXRuntimeVersion)
	return extractLibs(resp.Body, prefix, destDir)
}

// extractLibs copies files and symlinks under prefix in a .tgz stream into destDir.
func extractLibs(r io.Reader, prefix, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	libName := onnxLibraryName()
	found := false
	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}
		filename := filepath.Base(name)
		dest := filepath.Join(destDir, filename)

		switch header.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return fmt.Errorf("creating file %s: %w", filename, err)
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return fmt.Errorf("writing file %s: %w", filename, copyErr)
			}
			if closeErr != nil {
				return closeErr
			}
		default:
			continue
		}

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}
