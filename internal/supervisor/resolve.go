package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Kind names one of the two helper executables.
type Kind string

const (
	// KindFire is the scan/send helper.
	KindFire Kind = "fire"
	// KindRelay is the long-lived listener helper.
	KindRelay Kind = "relay"
)

// BinaryName returns the platform-specific executable name for kind.
func BinaryName(kind Kind, goos string) (string, error) {
	if kind != KindFire && kind != KindRelay {
		return "", fmt.Errorf("unknown helper kind %q", kind)
	}
	switch goos {
	case "windows":
		return string(kind) + "_window.exe", nil
	case "darwin":
		return string(kind) + "_darwin", nil
	case "linux":
		return string(kind) + "_linux", nil
	default:
		return "", fmt.Errorf("unsupported platform %q", goos)
	}
}

// Resolve finds name next to the application: first in a bin directory that is a
// sibling of appDir, then in appDir/bin. When neither exists it returns the bare name
// for PATH lookup at spawn time. A miss is not an error here; only spawn can fail.
func Resolve(appDir, name string) string {
	for _, candidate := range Candidates(appDir, name) {
		if isExecutableFile(candidate) {
			return candidate
		}
	}
	return name
}

// Candidates lists the search locations in order, excluding the bare-name fallback.
func Candidates(appDir, name string) []string {
	appDir = strings.TrimSpace(appDir)
	if appDir == "" {
		return nil
	}
	return []string{
		filepath.Join(filepath.Dir(filepath.Clean(appDir)), "bin", name),
		filepath.Join(appDir, "bin", name),
	}
}

// ResolveKind combines BinaryName for the running platform with Resolve.
func ResolveKind(appDir string, kind Kind) (string, error) {
	name, err := BinaryName(kind, runtime.GOOS)
	if err != nil {
		return "", err
	}
	return Resolve(appDir, name), nil
}

// DefaultAppDir is the directory holding the running executable.
func DefaultAppDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
