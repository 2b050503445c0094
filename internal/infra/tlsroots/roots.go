package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoCertsFound is returned when PEM data holds no certificate.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")
)

// LoadPool returns the system roots extended with the certificates in
// files. Systems without a usable root store start from an empty pool.
func LoadPool(files ...string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
		}
		if err := AddPEM(pool, data); err != nil {
			return nil, fmt.Errorf("tlsroots: %s: %w", path, err)
		}
	}
	return pool, nil
}

// AddPEM adds every CERTIFICATE block of pemData to pool.
func AddPEM(pool *x509.CertPool, pemData []byte) error {
	added := 0
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// ClientConfig returns the configuration for dialing a hub. caFile, when
// set, is trusted in addition to the system roots.
func ClientConfig(caFile, serverName string) (*tls.Config, error) {
	var files []string
	if caFile != "" {
		files = append(files, caFile)
	}
	pool, err := LoadPool(files...)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
