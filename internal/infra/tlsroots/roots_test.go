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
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testCA returns a self-signed CA certificate and its PEM encoding.
func testCA(t *testing.T) (*x509.Certificate, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "filebay test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestAddCertPEM(t *testing.T) {
	cert, certPEM := testCA(t)

	// a key block before the certificate is skipped
	data := append(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte("x")}), certPEM...)

	pool := &Pool{certPool: x509.NewCertPool()}
	if err := pool.AddCertPEM(data); err != nil {
		t.Fatalf("AddCertPEM() error = %v", err)
	}

	opts := x509.VerifyOptions{Roots: pool.Pool()}
	if _, err := cert.Verify(opts); err != nil {
		t.Fatalf("CA not trusted by pool: %v", err)
	}
}

func TestAddCertPEM_Errors(t *testing.T) {
	pool := &Pool{certPool: x509.NewCertPool()}

	if err := pool.AddCertPEM(nil); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AddCertPEM(nil) error = %v, want ErrNoCertsFound", err)
	}
	if err := pool.AddCertPEM([]byte("not pem")); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AddCertPEM(garbage) error = %v, want ErrNoCertsFound", err)
	}

	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := pool.AddCertPEM(bad); err == nil || errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AddCertPEM(bad cert) error = %v, want parse error", err)
	}
}

func TestClientConfig(t *testing.T) {
	_, certPEM := testCA(t)
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ClientConfig(path)
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	if cfg.RootCAs == nil || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := ClientConfig(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("ClientConfig() with a missing file should fail")
	}
}
