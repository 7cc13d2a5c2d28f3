package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// DefaultPort is where the status agent listens unless configured otherwise
const DefaultPort = 2224

// Config contains configuration for the agent server
type Config struct {
	Port     int    // Server port
	CertFile string // Server certificate file
	KeyFile  string // Server private key file
	CAFile   string // CA certificate file for client verification
	LogFile  string // Optional log file path
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		Port: DefaultPort,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.CertFile == "" {
		return fmt.Errorf("server certificate file is required")
	}

	if c.KeyFile == "" {
		return fmt.Errorf("server key file is required")
	}

	if c.CAFile == "" {
		return fmt.Errorf("CA certificate file is required")
	}

	return checkFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// LoadTLSConfig creates the mutual TLS configuration for the server
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig contains configuration for the agent client
type ClientConfig struct {
	Host     string // Target host
	Port     int    // Target port
	CertFile string // Client certificate file
	KeyFile  string // Client private key file
	CAFile   string // CA certificate file for server verification
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host: "localhost",
		Port: DefaultPort,
	}
}

// Validate checks if the client configuration is valid
func (c ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.CertFile == "" {
		return fmt.Errorf("client certificate file is required")
	}

	if c.KeyFile == "" {
		return fmt.Errorf("client key file is required")
	}

	if c.CAFile == "" {
		return fmt.Errorf("CA certificate file is required")
	}

	return checkFiles(c.CertFile, c.KeyFile, c.CAFile)
}

// LoadClientTLSConfig creates TLS configuration for the client
func (c ClientConfig) LoadClientTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func checkFiles(cert, key, ca string) error {
	if _, err := os.Stat(cert); err != nil {
		return fmt.Errorf("certificate file not found: %s", cert)
	}

	if _, err := os.Stat(key); err != nil {
		return fmt.Errorf("key file not found: %s", key)
	}

	if _, err := os.Stat(ca); err != nil {
		return fmt.Errorf("CA file not found: %s", ca)
	}

	return nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}
