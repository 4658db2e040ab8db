package config

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
)

// CreatePostgresTLSConfig returns nil when no CA certificate is configured.
func (c *Config) CreatePostgresTLSConfig() (*tls.Config, error) {
	if c.DBCACert == "" {
		return nil, nil
	}
	rootCertPool := x509.NewCertPool()
	if ok := rootCertPool.AppendCertsFromPEM([]byte(c.DBCACert)); !ok {
		return nil, &ConfigurationError{Key: "DB_CA_CERT", Reason: "failed to parse Postgres CA certificate"}
	}
	serverName := c.DBHost
	if serverName == "" {
		serverName = hostFromURL(c.DBURL)
	}
	return &tls.Config{
		RootCAs:    rootCertPool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// CreateKafkaTLSConfig returns nil when no CA certificate is configured.
func (c *Config) CreateKafkaTLSConfig() (*tls.Config, error) {
	if c.KafkaCACert == "" {
		return nil, nil
	}
	rootCertPool := x509.NewCertPool()
	if ok := rootCertPool.AppendCertsFromPEM([]byte(c.KafkaCACert)); !ok {
		return nil, &ConfigurationError{Key: "KAFKA_CA_CERT", Reason: "failed to parse Kafka CA certificate"}
	}

	// Extract host without port for TLS ServerName
	var serverName string
	if len(c.KafkaBrokers) > 0 {
		host, _, err := net.SplitHostPort(c.KafkaBrokers[0])
		if err != nil {
			// no port
			serverName = c.KafkaBrokers[0]
		} else {
			serverName = host
		}
	}

	return &tls.Config{
		RootCAs:    rootCertPool,
		ServerName: serverName, // must match SAN in certificate
		MinVersion: tls.VersionTLS12,
	}, nil
}

func hostFromURL(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
