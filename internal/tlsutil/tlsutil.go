// Package tlsutil builds TLS client configuration from the pass-through
// connection options. The bridge itself never looks at these keys; only the
// bundled websocket factory does.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"peerwire/internal/config"
)

// FromOptions assembles a *tls.Config from the TLS options present in opts.
// Returns nil when no TLS option is set, leaving the dialer's defaults in
// place.
func FromOptions(opts config.Options) (*tls.Config, error) {
	var (
		cfg *tls.Config
		get = func() *tls.Config {
			if cfg == nil {
				cfg = &tls.Config{}
			}
			return cfg
		}
	)

	if v := opts.Value(config.OptTLSServerName); v != "" {
		get().ServerName = v
	}
	if v := opts.Value(config.OptTLSInsecure); v == "true" || v == "1" {
		get().InsecureSkipVerify = true
	}
	if path := opts.Value(config.OptTLSRootCAFile); path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read root CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", path)
		}
		get().RootCAs = pool
	}
	certFile := opts.Value(config.OptTLSCertFile)
	keyFile := opts.Value(config.OptTLSKeyFile)
	if certFile != "" || keyFile != "" {
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("client cert and key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		get().Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// EnsureServerName fills in ServerName from host when the config does not
// carry one, cloning so the caller's config stays untouched.
func EnsureServerName(cfg *tls.Config, host string) *tls.Config {
	if cfg == nil {
		return &tls.Config{ServerName: host}
	}
	if cfg.ServerName != "" {
		return cfg
	}
	out := cfg.Clone()
	out.ServerName = host
	return out
}
