// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"

	"github.com/ffutop/modbus-engine/modbus"
)

// ReadCoils reads 1 to 2000 contiguous coils.
func (c *Client) ReadCoils(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, slaveID, modbus.FuncCodeReadCoils, address, quantity, 1)
}

// ReadCoilsRetry is ReadCoils with up to Attempts attempts.
func (c *Client) ReadCoilsRetry(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, slaveID, modbus.FuncCodeReadCoils, address, quantity, c.attempts())
}

// ReadDiscreteInputs reads 1 to 2000 contiguous discrete inputs.
func (c *Client) ReadDiscreteInputs(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, slaveID, modbus.FuncCodeReadDiscreteInputs, address, quantity, 1)
}

// ReadDiscreteInputsRetry is ReadDiscreteInputs with up to Attempts attempts.
func (c *Client) ReadDiscreteInputsRetry(ctx context.Context, slaveID byte, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, slaveID, modbus.FuncCodeReadDiscreteInputs, address, quantity, c.attempts())
}

// ReadHoldingRegisters reads 1 to 125 contiguous holding registers.
func (c *Client) ReadHoldingRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, slaveID, modbus.FuncCodeReadHoldingRegisters, address, quantity, 1)
}

// ReadHoldingRegistersRetry is ReadHoldingRegisters with up to Attempts attempts.
func (c *Client) ReadHoldingRegistersRetry(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, slaveID, modbus.FuncCodeReadHoldingRegisters, address, quantity, c.attempts())
}

// ReadInputRegisters reads 1 to 125 contiguous input registers.
func (c *Client) ReadInputRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, slaveID, modbus.FuncCodeReadInputRegisters, address, quantity, 1)
}

// ReadInputRegistersRetry is ReadInputRegisters with up to Attempts attempts.
func (c *Client) ReadInputRegistersRetry(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, slaveID, modbus.FuncCodeReadInputRegisters, address, quantity, c.attempts())
}

// WriteSingleCoil writes one coil.
func (c *Client) WriteSingleCoil(ctx context.Context, slaveID byte, address uint16, value bool) error {
	return c.write(ctx, slaveID, modbus.WriteSingleCoilRequest(address, value), 1)
}

// WriteSingleCoilRetry is WriteSingleCoil with up to Attempts attempts.
func (c *Client) WriteSingleCoilRetry(ctx context.Context, slaveID byte, address uint16, value bool) error {
	return c.write(ctx, slaveID, modbus.WriteSingleCoilRequest(address, value), c.attempts())
}

// WriteSingleRegister writes one holding register.
func (c *Client) WriteSingleRegister(ctx context.Context, slaveID byte, address, value uint16) error {
	return c.write(ctx, slaveID, modbus.WriteSingleRegisterRequest(address, value), 1)
}

// WriteSingleRegisterRetry is WriteSingleRegister with up to Attempts attempts.
func (c *Client) WriteSingleRegisterRetry(ctx context.Context, slaveID byte, address, value uint16) error {
	return c.write(ctx, slaveID, modbus.WriteSingleRegisterRequest(address, value), c.attempts())
}

// WriteMultipleCoils writes 1 to 1968 contiguous coils.
func (c *Client) WriteMultipleCoils(ctx context.Context, slaveID byte, address uint16, values []bool) error {
	req, err := modbus.WriteMultipleCoilsRequest(address, values)
	if err != nil {
		return err
	}
	return c.write(ctx, slaveID, req, 1)
}

// WriteMultipleCoilsRetry is WriteMultipleCoils with up to Attempts attempts.
func (c *Client) WriteMultipleCoilsRetry(ctx context.Context, slaveID byte, address uint16, values []bool) error {
	req, err := modbus.WriteMultipleCoilsRequest(address, values)
	if err != nil {
		return err
	}
	return c.write(ctx, slaveID, req, c.attempts())
}

// WriteMultipleRegisters writes 1 to 123 contiguous holding registers.
func (c *Client) WriteMultipleRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	req, err := modbus.WriteMultipleRegistersRequest(address, values)
	if err != nil {
		return err
	}
	return c.write(ctx, slaveID, req, 1)
}

// WriteMultipleRegistersRetry is WriteMultipleRegisters with up to Attempts attempts.
func (c *Client) WriteMultipleRegistersRetry(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	req, err := modbus.WriteMultipleRegistersRequest(address, values)
	if err != nil {
		return err
	}
	return c.write(ctx, slaveID, req, c.attempts())
}

func (c *Client) readBits(ctx context.Context, slaveID, funcCode byte, address, quantity uint16, attempts int) ([]bool, error) {
	req, err := c.readRequest(slaveID, funcCode, address, quantity)
	if err != nil {
		return nil, err
	}
	resp, err := c.wait(ctx, slaveID, req, attempts)
	if err != nil {
		return nil, err
	}
	return modbus.DecodeBits(resp, quantity)
}

func (c *Client) readRegisters(ctx context.Context, slaveID, funcCode byte, address, quantity uint16, attempts int) ([]uint16, error) {
	req, err := c.readRequest(slaveID, funcCode, address, quantity)
	if err != nil {
		return nil, err
	}
	resp, err := c.wait(ctx, slaveID, req, attempts)
	if err != nil {
		return nil, err
	}
	return modbus.DecodeRegisters(resp, quantity)
}

func (c *Client) readRequest(slaveID, funcCode byte, address, quantity uint16) (modbus.ProtocolDataUnit, error) {
	if c.BroadcastNoReply && slaveID == modbus.BroadcastID {
		return modbus.ProtocolDataUnit{}, modbus.Protocolf("function '%v' cannot be broadcast", funcCode)
	}
	return modbus.ReadRequest(funcCode, address, quantity)
}

func (c *Client) write(ctx context.Context, slaveID byte, req modbus.ProtocolDataUnit, attempts int) error {
	resp, err := c.wait(ctx, slaveID, req, attempts)
	if err != nil {
		return err
	}
	if c.BroadcastNoReply && slaveID == modbus.BroadcastID {
		return nil
	}
	return modbus.VerifyEcho(req, resp)
}
