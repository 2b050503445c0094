package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed certificate for 127.0.0.1 and its key.
func writeCert(t *testing.T, dir, cn string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile = filepath.Join(dir, "hub.crt")
	keyFile = filepath.Join(dir, "hub.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func commonName(t *testing.T, r *CertReloader) string {
	t.Helper()
	c, _ := r.GetCertificate(nil)
	leaf, err := x509.ParseCertificate(c.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestAddPEM(t *testing.T) {
	certFile, keyFile := writeCert(t, t.TempDir(), "hub")
	certPEM, _ := os.ReadFile(certFile)
	keyPEM, _ := os.ReadFile(keyFile)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"certificate", certPEM, nil},
		{"key only", keyPEM, ErrNoCertsFound},
		{"garbage", []byte("not pem"), ErrNoCertsFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AddPEM(x509.NewCertPool(), tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	certFile, _ := writeCert(t, t.TempDir(), "hub")

	cfg, err := ClientConfig(certFile, "hub.local")
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	if cfg.ServerName != "hub.local" || cfg.MinVersion != tls.VersionTLS12 || cfg.RootCAs == nil {
		t.Errorf("ClientConfig() = %+v", cfg)
	}

	if _, err := ClientConfig("/nonexistent/ca.pem", ""); err == nil {
		t.Error("ClientConfig() with a missing CA file succeeded")
	}
}

func TestCertReloader_Handshake(t *testing.T) {
	certFile, keyFile := writeCert(t, t.TempDir(), "hub")
	r, err := NewCertReloader(certFile, keyFile)
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", r.ServerConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.(*tls.Conn).Handshake()
		c.Close()
	}()

	clientCfg, err := ClientConfig(certFile, "")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("tls.Dial() error = %v", err)
	}
	conn.Close()
}

func TestCertReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first")

	r, err := NewCertReloader(certFile, keyFile, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewCertReloader() error = %v", err)
	}
	if err := r.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer r.Stop()

	writeCert(t, dir, "second")
	deadline := time.Now().Add(5 * time.Second)
	for commonName(t, r) != "second" {
		if time.Now().After(deadline) {
			t.Fatal("certificate was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCertReloader_BadFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCertReloader(filepath.Join(dir, "a"), filepath.Join(dir, "b")); err == nil {
		t.Error("NewCertReloader() with missing files succeeded")
	}

	certFile, keyFile := writeCert(t, dir, "keep")
	r, err := NewCertReloader(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(keyFile, []byte("broken"), 0o600)
	if err := r.Reload(); err == nil {
		t.Error("Reload() with a broken key succeeded")
	}
	if commonName(t, r) != "keep" {
		t.Error("failed reload replaced the certificate")
	}
}
