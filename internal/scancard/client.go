package scancard

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPort is the TCP port the scancard service listens on.
	DefaultPort = 50000
	// DefaultTimeout bounds connect, write and read of one request.
	DefaultTimeout = 5 * time.Second
	// DefaultReadBuffer is the maximum reply size read per request.
	DefaultReadBuffer = 1024
)

// Client sends commands to the scancard over TCP. Every Send opens a new
// connection and closes it before returning.
type Client struct {
	addr       string
	timeout    time.Duration
	readBuffer int
}

// NewClient creates a client for host:port.
func NewClient(host string, port int, timeout time.Duration, readBuffer int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if readBuffer <= 0 {
		readBuffer = DefaultReadBuffer
	}
	return &Client{
		addr:       net.JoinHostPort(host, strconv.Itoa(port)),
		timeout:    timeout,
		readBuffer: readBuffer,
	}
}

// Addr returns the device address.
func (c *Client) Addr() string {
	return c.addr
}

// Send writes cmd to the device and returns its reply. Failures to connect,
// write or read are returned as *TransportError; unparseable replies as
// *DecodeError. The ret code is not interpreted.
func (c *Client) Send(ctx context.Context, cmd Command) (*Response, error) {
	payload, err := cmd.Encode()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return nil, &TransportError{Op: "connect", Addr: c.addr, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "set deadline", Addr: c.addr, Err: err}
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, &TransportError{Op: "write", Addr: c.addr, Err: err}
	}

	buf := make([]byte, c.readBuffer)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrNoResponse
		}
		return nil, &TransportError{Op: "read", Addr: c.addr, Err: err}
	}

	return DecodeResponse(buf[:n])
}
