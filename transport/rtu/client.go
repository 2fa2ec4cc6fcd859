// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"io"
	"sync"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/master"
	"github.com/ffutop/modbus-engine/modbus"
	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
)

var _ modbus.Connector = (*Client)(nil)

// Client is a Modbus RTU master on a serial port.
type Client struct {
	*master.Client

	Config    config.SerialConfig
	Direction Direction

	mu   sync.Mutex
	port io.Closer
}

// NewClient allocates and initializes a RTU Client. Connect opens the port.
func NewClient(cfg config.SerialConfig) *Client {
	mc := master.New(nil, rtupacket.Packager{})
	mc.BroadcastNoReply = true
	if cfg.ResponseTimeout > 0 {
		mc.Timeout = cfg.ResponseTimeout
	}
	return &Client{Client: mc, Config: cfg}
}

// Connect opens the serial port if it is not open.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return nil
	}
	port, err := Open(c.Config)
	if err != nil {
		return err
	}
	c.port = port
	c.SetStream(withDirection(port, c.Direction, Timing(c.Config), c.Clock))
	return nil
}

// Close closes the serial port.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.SetStream(nil)
	return err
}
