// Package peer implements the instrumented-client side of the wire protocol.
// It stands in for a real game client in tests and in the simulate command.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/ipc"
	"github.com/psforever/GameLogger/types"
)

// ErrRejected is returned by Identify when the controller does not accept
// the peer.
var ErrRejected = errors.New("identify rejected by controller")

// Config configures a Client.
type Config struct {
	Network string
	Address string
	// PID is reported in IDENTIFY.
	PID uint32
	// Version is reported in IDENTIFY. Zero means types.WireVersion.
	Version types.ProtocolVersion
	// Timeout bounds each read and write. Zero means no deadline.
	Timeout time.Duration
}

// Client is a connection to a controller.
type Client struct {
	config  Config
	conn    net.Conn
	decoder *ipc.FrameDecoder

	writeMu sync.Mutex
}

// Dial connects to the controller at config.Address.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.Version == (types.ProtocolVersion{}) {
		config.Version = types.WireVersion
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, config.Network, config.Address)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s %s: %w", config.Network, config.Address, err)
	}
	return &Client{
		config:  config,
		conn:    conn,
		decoder: ipc.NewFrameDecoder(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one message.
func (c *Client) Send(m ipc.Message) error {
	payload, err := ipc.Encode(m)
	if err != nil {
		return err
	}
	return c.SendPayload(payload)
}

// SendPayload writes an already encoded message.
func (c *Client) SendPayload(payload []byte) error {
	frame, err := ipc.AppendFrame(nil, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}

// Receive reads and decodes one message.
func (c *Client) Receive() (ipc.Message, error) {
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return nil, err
	}
	payload, err := c.decoder.ReadFrame()
	if err != nil {
		return nil, err
	}
	return ipc.Decode(payload)
}

func (c *Client) deadline() time.Time {
	if c.config.Timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.Timeout)
}

// Identify sends IDENTIFY and waits for IDENTIFY_RESP. A controller that
// rejects the peer sends nothing, so a closed connection or timeout is
// reported as ErrRejected.
func (c *Client) Identify() error {
	err := c.Send(ipc.Identify{
		Major: c.config.Version.Major,
		Minor: c.config.Version.Minor,
		PID:   c.config.PID,
	})
	if err != nil {
		return fmt.Errorf("peer: send identify: %w", err)
	}

	msg, err := c.Receive()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	resp, ok := msg.(ipc.IdentifyResp)
	if !ok {
		return fmt.Errorf("peer: expected %s, got %s", ipc.OpIdentifyResp, msg.Opcode())
	}
	if !resp.Accepted {
		return ErrRejected
	}
	return nil
}

// SendRecords sends records in NEW_RECORDS messages of at most batch records.
func (c *Client) SendRecords(records []gamerecord.Record, batch int) error {
	if batch <= 0 {
		batch = len(records)
	}
	for start := 0; start < len(records); start += batch {
		end := min(start+batch, len(records))
		if err := c.Send(ipc.NewRecords{Records: records[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// Handler decides how the peer answers capture control requests.
type Handler interface {
	StartCapture() (okay bool, code ipc.CaptureError)
	StopCapture() (okay bool, code ipc.CaptureError)
}

// Serve answers control requests until the controller sends DISCONNECT,
// the connection fails, or ctx is done. A controller DISCONNECT returns nil.
func (c *Client) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := c.decoder.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("peer: read: %w", err)
		}
		msg, err := ipc.Decode(payload)
		if err != nil {
			return fmt.Errorf("peer: %w", err)
		}

		switch msg.(type) {
		case ipc.StartCapture:
			okay, code := h.StartCapture()
			err = c.Send(ipc.StartCaptureResp{Okay: okay, Error: code})
		case ipc.StopCapture:
			okay, code := h.StopCapture()
			err = c.Send(ipc.StopCaptureResp{Okay: okay, Error: code})
		case ipc.Disconnect:
			return nil
		}
		if err != nil {
			return fmt.Errorf("peer: respond to %s: %w", msg.Opcode(), err)
		}
	}
}
