// Package pki generates self-signed certificates for development TLS and
// for certificates uploaded from the CLI.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/logging"
)

// RenewBefore is how close to expiry a stored certificate is replaced.
const RenewBefore = 30 * 24 * time.Hour

// Pair is a PEM-encoded certificate and its private key.
type Pair struct {
	CertPEM []byte
	KeyPEM  []byte
}

// TLS parses the pair for a tls.Config.
func (p Pair) TLS() (tls.Certificate, error) {
	return tls.X509KeyPair(p.CertPEM, p.KeyPEM)
}

// GenerateSelfSigned creates an ECDSA P-256 certificate for hosts, valid
// from now for validFor. Entries of hosts that parse as IPs become IP SANs,
// the rest DNS SANs; the first entry is the common name.
func GenerateSelfSigned(hosts []string, now time.Time, validFor time.Duration) (Pair, error) {
	if len(hosts) == 0 {
		return Pair{}, errors.New("at least one host is required")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{brand.Name},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return Pair{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}

// Fingerprint is the SHA-256 of the leaf certificate in hex, the format the
// client pins against.
func Fingerprint(cert tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	return hex.EncodeToString(sum[:])
}

// CertManager keeps a self-signed serving certificate in a directory.
type CertManager struct {
	Dir   string
	Hosts []string

	clock  clock.Clock
	logger *logging.Logger
}

// NewCertManager manages cert.pem and key.pem in dir for hosts. Without
// hosts the certificate covers localhost and the loopback addresses.
func NewCertManager(dir string, hosts []string, clk clock.Clock, logger *logging.Logger) *CertManager {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	if logger == nil {
		logger = logging.WithComponent("pki")
	}
	return &CertManager{Dir: dir, Hosts: hosts, clock: clock.OrReal(clk), logger: logger}
}

func (m *CertManager) certPath() string { return filepath.Join(m.Dir, "cert.pem") }
func (m *CertManager) keyPath() string  { return filepath.Join(m.Dir, "key.pem") }

// EnsureCert returns the stored certificate, generating a new one when it
// is missing, expires within RenewBefore, or does not cover every host.
func (m *CertManager) EnsureCert() (tls.Certificate, error) {
	if cert, err := tls.LoadX509KeyPair(m.certPath(), m.keyPath()); err == nil {
		if m.usable(cert) {
			return cert, nil
		}
		m.logger.Info("replacing self-signed certificate", "dir", m.Dir)
	}

	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create cert dir: %w", err)
	}

	pair, err := GenerateSelfSigned(m.Hosts, m.clock.Now(), 365*24*time.Hour)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(m.certPath(), pair.CertPEM, 0o644); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(m.keyPath(), pair.KeyPEM, 0o600); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to write private key: %w", err)
	}
	m.logger.Info("generated self-signed certificate", "dir", m.Dir, "hosts", m.Hosts)
	return pair.TLS()
}

func (m *CertManager) usable(cert tls.Certificate) bool {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	if m.clock.Until(leaf.NotAfter) < RenewBefore {
		return false
	}
	for _, h := range m.Hosts {
		if leaf.VerifyHostname(h) != nil {
			return false
		}
	}
	return true
}
