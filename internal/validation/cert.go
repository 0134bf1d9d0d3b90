package validation

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"grimm.is/rampart/internal/api"
)

// CertificateInfo is what the console shows about an uploaded certificate.
type CertificateInfo struct {
	Subject   string
	Issuer    string
	DNSNames  []string
	NotBefore time.Time
	NotAfter  time.Time
}

// ParseCertificate decodes the first certificate in a PEM bundle.
func ParseCertificate(pemData string) (*CertificateInfo, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	issuer := cert.Issuer.CommonName
	if issuer == "" {
		issuer = cert.Issuer.String()
	}
	return &CertificateInfo{
		Subject:   cert.Subject.CommonName,
		Issuer:    issuer,
		DNSNames:  cert.DNSNames,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
	}, nil
}

// Status classifies a certificate at time now as valid or expired.
func (c *CertificateInfo) Status(now time.Time) string {
	if now.Before(c.NotBefore) || !now.Before(c.NotAfter) {
		return api.CertExpired
	}
	return api.CertValid
}
