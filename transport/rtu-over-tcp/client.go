// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-engine/master"
	"github.com/ffutop/modbus-engine/modbus"
	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
	"github.com/ffutop/modbus-engine/transport"
)

const (
	tcpTimeout = 10 * time.Second
)

var _ modbus.Connector = (*Client)(nil)

// Client is a Modbus RTU over TCP master, typically talking to a serial
// device server.
type Client struct {
	*master.Client
	Address     string
	DialTimeout time.Duration

	mu   sync.Mutex
	conn *transport.BufferedStream
}

// NewClient allocates and initializes a RTU over TCP Client. Broadcasts
// are not answered, as on the serial line behind the device server.
func NewClient(address string) *Client {
	c := &Client{
		Client:      master.New(nil, rtupacket.Packager{}),
		Address:     address,
		DialTimeout: tcpTimeout,
	}
	c.BroadcastNoReply = true
	return c
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
