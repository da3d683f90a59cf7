package transport

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTLSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCAFile(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write CA file: %v", err)
	}
	return path
}

func TestNewClientTLSConfigDefaults(t *testing.T) {
	conf, err := NewClientTLSConfig(TLSConfig{})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected TLS 1.2 minimum, got %x", conf.MinVersion)
	}
	if conf.RootCAs != nil {
		t.Error("expected system roots")
	}

	conf, err = NewClientTLSConfig(TLSConfig{RequireTLS13: true, ServerName: "i3x.local"})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS13 {
		t.Errorf("expected TLS 1.3 minimum, got %x", conf.MinVersion)
	}
	if conf.ServerName != "i3x.local" {
		t.Errorf("expected server name i3x.local, got %s", conf.ServerName)
	}
}

func TestNewClientTLSConfigErrors(t *testing.T) {
	t.Run("MissingCAFile", func(t *testing.T) {
		_, err := NewClientTLSConfig(TLSConfig{CAFile: filepath.Join(t.TempDir(), "none.pem")})
		if err == nil {
			t.Error("expected error for missing CA file")
		}
	})

	t.Run("EmptyCAFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.pem")
		if err := os.WriteFile(path, []byte("not a cert"), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := NewClientTLSConfig(TLSConfig{CAFile: path})
		if !errors.Is(err, ErrNoCACerts) {
			t.Errorf("expected ErrNoCACerts, got %v", err)
		}
	})

	t.Run("CertWithoutKey", func(t *testing.T) {
		_, err := NewClientTLSConfig(TLSConfig{CertFile: "client.pem"})
		if !errors.Is(err, ErrIncompleteKeyPair) {
			t.Errorf("expected ErrIncompleteKeyPair, got %v", err)
		}
	})
}

func TestOpenWithCustomCA(t *testing.T) {
	srv := newTLSTestServer(t)

	c := New(srv.URL, Options{TLS: TLSConfig{CAFile: writeCAFile(t, srv), RequireTLS13: true}})
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()
}

func TestOpenRejectsUnknownCA(t *testing.T) {
	srv := newTLSTestServer(t)

	c := New(srv.URL, Options{TLS: TLSConfig{ServerName: "example.com"}})
	err := c.Open(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if c.IsOpen() {
		t.Error("client must stay closed")
	}
}

func TestOpenInsecureSkipVerify(t *testing.T) {
	srv := newTLSTestServer(t)

	c := New(srv.URL, Options{TLS: TLSConfig{InsecureSkipVerify: true}})
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()
}

func TestVerifyTLS13(t *testing.T) {
	if err := VerifyTLS13(tls.ConnectionState{Version: tls.VersionTLS13}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := VerifyTLS13(tls.ConnectionState{Version: tls.VersionTLS12}); err == nil {
		t.Error("expected error for TLS 1.2")
	}
}
