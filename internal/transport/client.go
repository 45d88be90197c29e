package transport

import (
	"context"
	"net"
	"time"
)

// Client is the host side of a Listener: it sends one command frame and
// waits for the matching response.
type Client struct {
	conn   net.Conn
	limits Limits
}

func Dial(ctx context.Context, addr string, limits Limits) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, limits: limits.withDefaults()}, nil
}

// Exchange writes frame and reads the next response frame.
func (c *Client) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := WriteFrame(c.conn, frame, c.limits); err != nil {
		return nil, err
	}
	resp, err := ReadFrame(c.conn, c.limits)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return resp, err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
