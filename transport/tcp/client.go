// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-engine/master"
	"github.com/ffutop/modbus-engine/modbus"
	tcppacket "github.com/ffutop/modbus-engine/modbus/tcp"
	"github.com/ffutop/modbus-engine/transport"
)

const (
	tcpTimeout = 10 * time.Second
)

var _ modbus.Connector = (*Client)(nil)

// Client is a Modbus TCP master on one persistent connection.
type Client struct {
	*master.Client
	Address     string
	DialTimeout time.Duration

	mu   sync.Mutex
	conn *transport.BufferedStream
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Client:      master.New(nil, &tcppacket.Packager{}),
		Address:     address,
		DialTimeout: tcpTimeout,
	}
}

// Connect dials the server, replacing a previous connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.close()
	d := net.Dialer{Timeout: c.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("modbus: failed to connect to %s: %w", c.Address, err)
	}
	c.conn = transport.NewBufferedStream(nc)
	c.SetStream(c.conn)
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Client) close() error {
	if c.conn == nil {
		return nil
	}
	c.SetStream(nil)
	err := c.conn.Close()
	c.conn = nil
	return err
}
