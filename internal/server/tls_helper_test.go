package server

import "crypto/tls"

func insecureClientTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} // #nosec G402 self-signed test certificate
}
