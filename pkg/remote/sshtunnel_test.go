package remote

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/labrig-project/labrig/pkg/errkind"
)

func TestDialSSHTunnel_MissingKeyFile(t *testing.T) {
	_, err := DialSSHTunnel("localhost:22", "lab", filepath.Join(t.TempDir(), "no-such-key"), "127.0.0.1:9")
	var ioErr *errkind.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError for a missing key file, got %v", err)
	}
}

func TestDialSSHTunnel_MalformedKeyFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "bad.key")
	if err := os.WriteFile(keyPath, []byte("not a private key"), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	_, err := DialSSHTunnel("localhost:22", "lab", keyPath, "127.0.0.1:9")
	var parseErr *errkind.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for a malformed key, got %v", err)
	}
}
