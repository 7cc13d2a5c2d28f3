// Package cert issues the certificates the status agent and its clients use
// for mutual TLS.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const organization = "dimmctl"

// key sizes; tests shrink them
var (
	caKeyBits   = 4096
	leafKeyBits = 2048
)

// Usage is what an issued certificate may be used for
type Usage int

const (
	ServerUsage Usage = iota
	ClientUsage
)

func (u Usage) String() string {
	if u == ClientUsage {
		return "client"
	}
	return "server"
}

func (u Usage) extKeyUsage() x509.ExtKeyUsage {
	if u == ClientUsage {
		return x509.ExtKeyUsageClientAuth
	}
	return x509.ExtKeyUsageServerAuth
}

// Authority is a self-signed CA that signs agent and client certificates
type Authority struct {
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
}

// NewAuthority creates a new self-signed CA valid for ten years
func NewAuthority() (*Authority, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   "dimmctl agent CA",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{
		caCert: caCert,
		caKey:  caKey,
	}, nil
}

// SaveCA saves the CA certificate and key to files
func (a *Authority) SaveCA(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", a.caCert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(a.caKey), 0o600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// LoadCA loads CA certificate and key from files
func LoadCA(certPath, keyPath string) (*Authority, error) {
	caCert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA cert: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 -- keyPath is a user-specified CA key file path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode CA key PEM")
	}

	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	if !caCert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certPath)
	}

	return &Authority{
		caCert: caCert,
		caKey:  caKey,
	}, nil
}

// Issue signs a new certificate for name. Server certificates also carry
// hosts as DNS or IP subject alternative names.
func (a *Authority) Issue(name string, usage Usage, hosts []string, validFor time.Duration) (*Certificate, error) {
	if name == "" {
		return nil, fmt.Errorf("certificate name is required")
	}
	if validFor <= 0 {
		return nil, fmt.Errorf("invalid validity period: %s", validFor)
	}

	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   name,
		},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{usage.extKeyUsage()},
	}

	if usage == ServerUsage {
		for _, h := range hosts {
			if ip := net.ParseIP(h); ip != nil {
				template.IPAddresses = append(template.IPAddresses, ip)
			} else {
				template.DNSNames = append(template.DNSNames, h)
			}
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, a.caCert, &key.PublicKey, a.caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Certificate: cert,
		PrivateKey:  key,
		Usage:       usage,
		IssuedAt:    now,
	}, nil
}

// Verify checks that cert was signed by this authority for usage
func (a *Authority) Verify(cert *x509.Certificate, usage Usage) error {
	return verify(cert, a.caCert, usage)
}

// Certificate represents an issued certificate
type Certificate struct {
	*x509.Certificate
	PrivateKey *rsa.PrivateKey
	Usage      Usage
	IssuedAt   time.Time
}

// Save saves the certificate and, when keyPath is set, its key
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}

	if keyPath != "" {
		if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(c.PrivateKey), 0o600); err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
	}

	return nil
}

// PEM returns the certificate as a PEM-encoded string
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: c.Raw,
	}))
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) // #nosec G304 -- path is provided by the user
	if err != nil {
		return err
	}

	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = out.Close()
		return err
	}

	// OpenFile keeps the mode of an existing file
	if err := out.Chmod(perm); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}
