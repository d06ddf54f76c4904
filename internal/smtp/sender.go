package smtp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// Credentials identify one SMTP submission endpoint and login.
type Credentials struct {
	Address  string // host:port
	Username string
	Password string
	UseTLS   bool
}

// Sender is the outbound transport capability. The dispatcher treats it as
// opaque: success or a transport error.
type Sender interface {
	Send(creds Credentials, msg *Message) error
}

// Client sends messages over SMTP with PLAIN authentication.
type Client struct {
	dialTimeout time.Duration
}

// NewClient creates an SMTP sender.
func NewClient() *Client {
	return &Client{dialTimeout: 10 * time.Second}
}

// Send encodes the message and submits it in a single SMTP session.
func (c *Client) Send(creds Credentials, msg *Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	client, err := c.dial(creds.Address, creds.UseTLS)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", creds.Address, err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("AUTH"); ok {
		auth := sasl.NewPlainClient("", creds.Username, creds.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate as %s: %w", creds.Username, err)
		}
	}

	if err := client.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send to %s: %w", msg.To, err)
	}

	return client.Quit()
}

// dial connects with a timeout.
// useTLS: true for production (implicit TLS), false for tests (plain TCP).
func (c *Client) dial(address string, useTLS bool) (*gosmtp.Client, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}

	if useTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", address, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return gosmtp.NewClient(conn), nil
	}

	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return gosmtp.NewClient(conn), nil
}
