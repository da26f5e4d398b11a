// Package client wires protocol/codec's encoder/decoder/fragment
// assembler to a protocol/transport.Transport, implementing one
// request-response round trip (spec §5: "Command/response pairing on
// the UDP client is strict request-response; a new command is not
// sent until the prior response is decoded or a timeout fires").
// Grounded on
// _examples/other_examples/395c4612_iLukSbr-udp-server-and-client__internal-clientudp-clientudp.go.go's
// read-then-decode loop and spec §4.6.3's fragment reassembly.
package client

import (
	"context"
	"sync"

	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/anidbgo/anidbclient/protocol/transport"
	"github.com/sirupsen/logrus"
)

// recvBufSize is sized for one UDP datagram; fragments are
// reassembled one datagram read at a time by the Assembler.
const recvBufSize = 2 * codec.MaxPacketSize

// Client pairs a Connection with its Decoder/Assembler state and
// serializes sends so only one command is ever in flight (spec §5).
// It implements protocol/query.Sender.
type Client struct {
	conn *transport.Connection

	mu        sync.Mutex
	decoder   *codec.Decoder
	assembler *codec.Assembler
	log       *logrus.Entry
}

// New wraps an already-Connected transport.Connection.
func New(conn *transport.Connection) *Client {
	return &Client{
		conn:      conn,
		decoder:   codec.NewDecoder(),
		assembler: codec.NewAssembler(),
		log:       logrus.WithField("component", "protocol-client"),
	}
}

// Send encodes cmd, transmits it, and blocks for the matching response,
// transparently reassembling fragmented replies (spec §4.6.3). Only one
// Send may be in flight at a time: query.QueryManager does not
// serialize its calls, so Client holds its own lock to keep the
// "strict request-response" invariant.
func (c *Client) Send(ctx context.Context, cmd *codec.Command) (codec.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithField("command", cmd.Name)

	if !c.conn.IsConnected() {
		log.Debug("client: transport not connected, connecting")
		if err := c.conn.Connect(); err != nil {
			return codec.Response{}, err
		}
	}

	payload, err := codec.Encode(cmd)
	if err != nil {
		return codec.Response{}, err
	}

	tr := c.conn.Transport()
	if err := tr.Send(payload); err != nil {
		return codec.Response{}, err
	}
	log.Trace("client: command sent")

	buf := make([]byte, recvBufSize)
	for {
		n, err := tr.Recv(ctx, buf)
		if err != nil {
			return codec.Response{}, err
		}
		datagram := string(buf[:n])

		if isFragment(datagram) {
			joined, done, err := c.assembler.Feed(datagram)
			if err != nil {
				return codec.Response{}, err
			}
			if !done {
				log.Trace("client: fragment buffered, awaiting remainder")
				continue
			}
			log.Debug("client: fragmented response reassembled")
			return c.decodeComplete(joined)
		}

		resp, done, err := c.decoder.Feed(buf[:n])
		if err != nil {
			return codec.Response{}, err
		}
		if done {
			log.WithField("code", resp.Code).Trace("client: response decoded")
			return resp, nil
		}
	}
}

// decodeComplete feeds an already-reassembled fragment body through a
// fresh Decoder pass; fragment bodies are always complete logical text
// by construction (the Assembler only returns once every part has
// arrived).
func (c *Client) decodeComplete(text string) (codec.Response, error) {
	d := codec.NewDecoder()
	resp, done, err := d.Feed([]byte(text + "\n"))
	if err != nil {
		return codec.Response{}, err
	}
	if !done {
		return codec.Response{}, &perr.FragmentationError{Msg: "reassembled fragment did not decode to a complete response"}
	}
	return resp, nil
}

func isFragment(datagram string) bool {
	return len(datagram) >= 4 && (datagram[:3] == "701" || datagram[:3] == "702")
}
