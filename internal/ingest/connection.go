package ingest

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// connect dials the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
func connect(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// login authenticates with the IMAP server.
func login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
