package cert

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"
)

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	CommonName  string
	Usage       string
	Hosts       []string
	NotAfter    time.Time
	Error       string
	Certificate *x509.Certificate
}

// ReadCertificate loads the first PEM certificate in path
func ReadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-specified certificate file
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// VerifyCertificateFile checks certPath against the CA in caCertPath. A
// certificate that fails verification is reported in the result, not as an
// error.
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	cert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, err
	}

	caCert, err := ReadCertificate(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("CA: %w", err)
	}

	usage := usageOf(cert)
	result := &VerifyResult{
		CommonName:  cert.Subject.CommonName,
		Usage:       usage.String(),
		NotAfter:    cert.NotAfter,
		Certificate: cert,
	}
	result.Hosts = append(result.Hosts, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		result.Hosts = append(result.Hosts, ip.String())
	}

	if err := verify(cert, caCert, usage); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}

	return result, nil
}

func verify(cert, caCert *x509.Certificate, usage Usage) error {
	roots := x509.NewCertPool()
	roots.AddCert(caCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{usage.extKeyUsage()},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

func usageOf(cert *x509.Certificate) Usage {
	for _, u := range cert.ExtKeyUsage {
		if u == x509.ExtKeyUsageClientAuth {
			return ClientUsage
		}
	}
	return ServerUsage
}

// FormatVerifyResult formats the verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	if result.Valid {
		sb.WriteString("Certificate: VALID\n")
	} else {
		sb.WriteString("Certificate: INVALID\n")
		fmt.Fprintf(&sb, "Error: %s\n", result.Error)
	}

	fmt.Fprintf(&sb, "Name: %s\n", result.CommonName)
	fmt.Fprintf(&sb, "Usage: %s\n", result.Usage)
	if len(result.Hosts) > 0 {
		fmt.Fprintf(&sb, "Hosts: %s\n", strings.Join(result.Hosts, ", "))
	}
	fmt.Fprintf(&sb, "Expires: %s\n", result.NotAfter.Format(time.RFC3339))

	return sb.String()
}
