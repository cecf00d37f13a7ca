package backends

import (
	"crypto/tls"
	"net/http"
	"time"
)

// MaxConnectionsPerHost bounds the connections a single session keeps per host
const MaxConnectionsPerHost = 250

// NewHTTPClient builds a client with a transport owned by one provider
// session. With trustUnsecure set, certificate validation is disabled on this
// transport only; http.DefaultTransport is never modified.
func NewHTTPClient(trustUnsecure bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = MaxConnectionsPerHost
	transport.MaxIdleConnsPerHost = MaxConnectionsPerHost
	transport.ExpectContinueTimeout = 0 // never wait for 100-continue

	if trustUnsecure {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
		// A custom TLS config turns HTTP/2 off unless asked for again
		transport.ForceAttemptHTTP2 = true
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// TrustsUnsecure reports whether client skips certificate validation.
func TrustsUnsecure(client *http.Client) bool {
	if client == nil {
		return false
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok || transport.TLSClientConfig == nil {
		return false
	}
	return transport.TLSClientConfig.InsecureSkipVerify
}
