// Package security holds the TLS settings shared by the Kafka and Redis
// connectors.
//
//	cfg := security.TLSConfig{
//	    CAFile:   "/path/to/ca.pem",
//	    CertFile: "/path/to/cert.pem",
//	    KeyFile:  "/path/to/key.pem",
//	}
//	tlsConfig, err := cfg.Build()
package security
