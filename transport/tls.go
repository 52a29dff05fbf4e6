package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/maxpert/amqp-router/config"
	routererrors "github.com/maxpert/amqp-router/errors"
)

var protocolVersions = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.0": tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// ServerTLSConfig builds the TLS configuration of a listener
func ServerTLSConfig(cfg *config.ServerConfig) (*tls.Config, error) {
	c, err := baseTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if len(c.Certificates) == 0 {
		return nil, routererrors.NewMissingAttribute("certFile")
	}

	clientCAs, err := certPool(cfg.TLS.TrustedCertificateDB, cfg.TLS.TrustedCertificates)
	if err != nil {
		return nil, err
	}
	c.ClientCAs = clientCAs

	switch {
	case cfg.RequireAuthentication || cfg.SSLRequirePeerAuthentication:
		c.ClientAuth = tls.RequireAndVerifyClientCert
	case clientCAs != nil:
		c.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		c.ClientAuth = tls.NoClientCert
	}
	return c, nil
}

// ClientTLSConfig builds the TLS configuration of an outbound connection to
// serverName. With verifyHostName unset the peer chain is still verified but
// its name is not checked.
func ClientTLSConfig(material config.TLSConfig, serverName string, verifyHostName bool) (*tls.Config, error) {
	c, err := baseTLSConfig(material)
	if err != nil {
		return nil, err
	}

	roots, err := certPool(material.TrustedCertificateDB)
	if err != nil {
		return nil, err
	}
	c.RootCAs = roots
	c.ServerName = serverName

	if !verifyHostName {
		c.InsecureSkipVerify = true
		c.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("peer presented no certificate")
			}
			opts := x509.VerifyOptions{
				Roots:         roots,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}
	return c, nil
}

func baseTLSConfig(material config.TLSConfig) (*tls.Config, error) {
	c := &tls.Config{MinVersion: tls.VersionTLS12}

	if material.Protocols != "" {
		lo, hi, err := parseProtocols(material.Protocols)
		if err != nil {
			return nil, err
		}
		c.MinVersion, c.MaxVersion = lo, hi
	}

	if material.Ciphers != "" {
		suites, err := parseCiphers(material.Ciphers)
		if err != nil {
			return nil, err
		}
		c.CipherSuites = suites
	}

	if material.CertificateFile != "" {
		cert, err := loadCertificate(material.CertificateFile, material.PrivateKeyFile, material.Password)
		if err != nil {
			return nil, err
		}
		c.Certificates = []tls.Certificate{cert}
	}
	return c, nil
}

func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':'
	})
}

func parseProtocols(value string) (lo, hi uint16, err error) {
	for _, token := range strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' }) {
		v, ok := protocolVersions[token]
		if !ok {
			return 0, 0, routererrors.NewInvalidAttribute("protocols", token, nil)
		}
		if lo == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, nil
}

// parseCiphers maps a cipher list onto Go's suites by IANA name. Names Go
// does not implement are skipped; a list with no usable suite is an error.
func parseCiphers(value string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	var suites []uint16
	for _, token := range splitList(value) {
		if id, ok := known[token]; ok {
			suites = append(suites, id)
		}
	}
	if len(suites) == 0 {
		return nil, routererrors.NewInvalidAttribute("ciphers", value, fmt.Errorf("no supported cipher suite"))
	}
	return suites, nil
}

func loadCertificate(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate file: %w", err)
	}
	if keyFile == "" {
		keyFile = certFile
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read private key file: %w", err)
	}

	if password != "" {
		if keyPEM, err = decryptKey(keyPEM, password); err != nil {
			return tls.Certificate{}, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return cert, nil
}

// decryptKey decrypts a legacy encrypted PEM private key. Unencrypted keys
// are returned unchanged.
func decryptKey(keyPEM []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	//nolint:staticcheck
	if block == nil || !x509.IsEncryptedPEMBlock(block) {
		return keyPEM, nil
	}
	//nolint:staticcheck
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// certPool loads every non-empty PEM bundle into one pool. It returns nil
// when no file is given so callers fall back to the system roots.
func certPool(files ...string) (*x509.CertPool, error) {
	var pool *x509.CertPool
	for _, file := range files {
		if file == "" {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, routererrors.NewInvalidAttribute("caCertFile", file, fmt.Errorf("no certificates found"))
		}
	}
	return pool, nil
}
