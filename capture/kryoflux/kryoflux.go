// Package kryoflux talks to a KryoFlux board over its USB bulk
// endpoints (the board exposes no serial CDC interface, unlike
// greaseweazle and supercardpro) and decodes its byte-oriented stream
// format into diskmodel.DeltaTrack values. The teacher's own kryoflux
// client never got past a stub ("TODO: Add KryoFlux specific
// initialization when protocol is known"); this backend instead talks
// the board's actual stream protocol over github.com/google/gousb.
package kryoflux

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/vintage-drives/mfmflux/capture"
	"github.com/vintage-drives/mfmflux/diskmodel"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124

	streamInEndpoint  = 0x82
	ctrlOutEndpoint   = 0x01
	bulkTransferBytes = 1 << 16
)

// Stream opcode bytes, per the board's documented flux stream format.
const (
	opOOB       = 0x0d
	opOvl16     = 0x0b
	opNop1      = 0x08
	opNop2      = 0x09
	opNop3      = 0x0a
	opFlux3     = 0x0c
	flux2Cutoff = 0x07 // opcodes 0x00-0x07 start a two-byte flux value
	flux1Cutoff = 0x0e // opcodes >= this are a one-byte flux value
)

// oobIndex is the out-of-band block type carrying index-pulse timing.
const oobIndex = 0x02

// Client owns the USB context and claimed interface for one board.
type Client struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	in   *gousb.InEndpoint
}

// Open implements capture.Factory for this backend. baudRate is unused
// since the board is accessed over USB bulk transfer, not a serial
// line; it is accepted only so Open satisfies capture.Factory.
func Open(_ string, _ int) (capture.Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("kryoflux: open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("kryoflux: no device matching vid=%04x pid=%04x", VendorID, ProductID)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("kryoflux: enable auto kernel-driver detach: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("kryoflux: claim default interface: %w", err)
	}
	in, err := intf.InEndpoint(streamInEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("kryoflux: open stream endpoint: %w", err)
	}
	return &Client{ctx: ctx, dev: dev, intf: intf, done: done, in: in}, nil
}

func init() {
	capture.Register(capture.Backend{Name: "kryoflux", VendorID: VendorID, ProductID: ProductID, Open: Open})
}

func (c *Client) sendCommand(cmd string) error {
	out, err := c.intf.OutEndpoint(ctrlOutEndpoint)
	if err != nil {
		return fmt.Errorf("open command endpoint: %w", err)
	}
	_, err = out.WriteContext(context.Background(), []byte(cmd))
	return err
}

func (c *Client) Status() string {
	return fmt.Sprintf("KryoFlux board (vid=%04x pid=%04x)", VendorID, ProductID)
}

func (c *Client) Seek(cylinder int) error {
	return c.sendCommand(fmt.Sprintf("c%d\n", cylinder))
}

func (c *Client) SetHead(head int) error {
	return c.sendCommand(fmt.Sprintf("h%d\n", head))
}

// readStream pulls a full bulk transfer's worth of raw stream bytes.
func (c *Client) readStream() ([]byte, error) {
	buf := make([]byte, bulkTransferBytes)
	n, err := c.in.ReadContext(context.Background(), buf)
	if err != nil {
		return nil, fmt.Errorf("read flux stream: %w", err)
	}
	return buf[:n], nil
}

// decodeStream walks the board's byte-oriented flux encoding: most
// intervals are a single opcode byte (>= flux1Cutoff) giving the
// interval directly in sck ticks; opcodes at or below flux2Cutoff start a
// two-byte big-endian value; opFlux3 is an explicit 2-byte value;
// opOvl16 adds 0x10000 ticks to the next decoded interval; opOOB marks
// an out-of-band block (index timing, stream info) to be skipped by
// its declared length; Nop1/2/3 are padding bytes with no flux value.
func decodeStream(data []byte) ([]diskmodel.Delta, error) {
	var deltas []diskmodel.Delta
	overflow := uint32(0)
	i := 0
	for i < len(data) {
		op := data[i]
		switch {
		case op == opOOB:
			if i+5 > len(data) {
				return deltas, nil
			}
			blockLen := int(data[i+2]) | int(data[i+3])<<8
			if data[i+1] == 0x0d { // stream end marker reuses OOB framing
				return deltas, nil
			}
			i += 4 + blockLen
		case op == opNop1:
			i++
		case op == opNop2:
			i += 2
		case op == opNop3:
			i += 3
		case op == opOvl16:
			overflow += 0x10000
			i++
		case op == opFlux3:
			if i+3 > len(data) {
				return deltas, nil
			}
			val := uint32(data[i+1])<<8 | uint32(data[i+2])
			deltas = append(deltas, scaledDelta(val+overflow))
			overflow = 0
			i += 3
		case op <= flux2Cutoff:
			if i+2 > len(data) {
				return deltas, nil
			}
			val := uint32(op)<<8 | uint32(data[i+1])
			deltas = append(deltas, scaledDelta(val+overflow))
			overflow = 0
			i += 2
		default: // flux1Cutoff..0xff
			deltas = append(deltas, scaledDelta(uint32(op)+overflow))
			overflow = 0
			i++
		}
	}
	return deltas, nil
}

// kryoflux boards run their sck counter at 24.027428MHz; scale ticks
// to the 200MHz reference clock shared by every delta track.
const boardClockHz = 24027428

func scaledDelta(ticks uint32) diskmodel.Delta {
	ns := uint64(ticks) * 1_000_000_000 / boardClockHz
	return diskmodel.Delta(diskmodel.NsToTicks(ns))
}

func (c *Client) ReadTrack(cylinder, head int) (diskmodel.DeltaTrack, error) {
	if err := c.sendCommand("s0\n"); err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("start stream: %w", err)
	}
	raw, err := c.readStream()
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("read track at cylinder %d head %d: %w", cylinder, head, err)
	}
	deltas, err := decodeStream(raw)
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("decode flux stream: %w", err)
	}
	return diskmodel.DeltaTrack{Cylinder: cylinder, Head: head, Deltas: deltas}, nil
}

func (c *Client) Close() error {
	if c.done != nil {
		c.done()
	}
	if c.dev != nil {
		c.dev.Close()
	}
	if c.ctx != nil {
		return c.ctx.Close()
	}
	return nil
}
