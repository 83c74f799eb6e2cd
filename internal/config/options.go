package config

// Options is the opaque, ordered key/value dictionary handed to a transport
// factory when a connection is created: TLS parameters, custom headers,
// proxy settings. The bridge passes it through unmodified and never
// interprets a key; only concrete factories do.
type Options []Option

// Option is a single pass-through entry.
type Option struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Option keys understood by the bundled websocket factory. Application
// factories are free to define their own.
const (
	OptTLSServerName = "tls.server_name"
	OptTLSRootCAFile = "tls.root_ca_file"
	OptTLSCertFile   = "tls.cert_file"
	OptTLSKeyFile    = "tls.key_file"
	OptTLSInsecure   = "tls.insecure_skip_verify"
	OptProxySOCKS5   = "proxy.socks5"
	OptProxyUsername = "proxy.username"
	OptProxyPassword = "proxy.password"
	OptReadWindow    = "read_window_bytes"
	OptHeaderPrefix  = "header." // header.<Name> becomes an HTTP header
)

// Get returns the first value stored under key.
func (o Options) Get(key string) (string, bool) {
	for _, kv := range o {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Value returns the first value stored under key, or "" when absent.
func (o Options) Value(key string) string {
	v, _ := o.Get(key)
	return v
}

// With returns a copy of o with key appended. The receiver is unchanged.
func (o Options) With(key, value string) Options {
	out := make(Options, 0, len(o)+1)
	out = append(out, o...)
	return append(out, Option{Key: key, Value: value})
}

// Clone deep-copies o so it can be retained beyond the call that carried it.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	copy(out, o)
	return out
}
