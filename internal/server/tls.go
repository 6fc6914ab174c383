package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NewTLSConfig loads the admin surface certificate. TLS 1.2 is the floor
// and Go's default suites apply.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
		}
	}
	if cert.Leaf != nil && time.Now().After(cert.Leaf.NotAfter) {
		return nil, fmt.Errorf("TLS certificate %s expired on %s", certPath, cert.Leaf.NotAfter.Format(time.DateOnly))
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// tlsFields describes a TLS configuration for the startup log line
func tlsFields(config *tls.Config) []zap.Field {
	fields := []zap.Field{zap.String("tls_min_version", tls.VersionName(config.MinVersion))}
	if len(config.Certificates) > 0 && config.Certificates[0].Leaf != nil {
		leaf := config.Certificates[0].Leaf
		fields = append(fields,
			zap.String("tls_subject", leaf.Subject.CommonName),
			zap.Time("tls_not_after", leaf.NotAfter),
		)
	}
	return fields
}
