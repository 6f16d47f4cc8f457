// Package greaseweazle talks to a Keir Fraser Greaseweazle USB floppy
// controller over its serial command protocol and turns the raw flux
// stream it returns into diskmodel.DeltaTrack values. The wire protocol
// (command/ACK codes, N28 interval encoding) is carried over verbatim
// from the reference client; what's new here is that flux is handed
// back as 200 MHz reference-clock deltas for this module's own
// pll/framer pipeline to decode, instead of being MFM-decoded inline
// by a second, duplicate PLL.
package greaseweazle

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/vintage-drives/mfmflux/capture"
	"github.com/vintage-drives/mfmflux/diskmodel"
)

const (
	VendorID  = 0x1209 // Open source hardware projects
	ProductID = 0x4d69 // Keir Fraser Greaseweazle
)

// Command codes.
const (
	cmdGetInfo       = 0
	cmdSeek          = 2
	cmdHead          = 3
	cmdMotor         = 6
	cmdReadFlux      = 7
	cmdGetFluxStatus = 9
	cmdSelect        = 12
	cmdSetBusType    = 14
)

// GET_INFO indices.
const infoFirmware = 0

// ACK return codes.
const (
	ackOkay          = 0
	ackBadCommand    = 1
	ackNoIndex       = 2
	ackNoTrk0        = 3
	ackFluxOverflow  = 4
	ackFluxUnderflow = 5
	ackWrprot        = 6
	ackNoUnit        = 7
	ackNoBus         = 8
	ackBadUnit       = 9
	ackBadPin        = 10
	ackBadCylinder   = 11
)

// Flux stream opcodes.
const (
	fluxopIndex = 1
	fluxopSpace = 2
)

const busIBMPC = 1

// FirmwareInfo is the parsed GETINFO_FIRMWARE response.
type FirmwareInfo struct {
	FwMajor        uint8
	FwMinor        uint8
	IsMainFirmware bool
	SampleFreqHz   uint32
	HwModel        uint8
}

// Client wraps a serial connection to a Greaseweazle device.
type Client struct {
	port         serial.Port
	firmwareInfo FirmwareInfo
}

// Open implements capture.Factory for this backend.
func Open(portName string, baudRate int) (capture.Device, error) {
	if baudRate == 0 {
		baudRate = 9600
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("greaseweazle: open serial port %s: %w", portName, err)
	}
	c := &Client{port: port}

	fw, err := c.fetchFirmwareVersion()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("greaseweazle: fetch firmware version: %w", err)
	}
	c.firmwareInfo = fw

	// Twiddling the baud rate signals the device to reset its data
	// stream state.
	if err := port.SetMode(&serial.Mode{BaudRate: 10000}); err != nil {
		port.Close()
		return nil, fmt.Errorf("greaseweazle: reset baud rate: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := port.SetMode(&serial.Mode{BaudRate: baudRate}); err != nil {
		port.Close()
		return nil, fmt.Errorf("greaseweazle: restore baud rate: %w", err)
	}

	if err := c.doCommand([]byte{cmdSetBusType, 3, busIBMPC}); err != nil {
		port.Close()
		return nil, fmt.Errorf("greaseweazle: set bus type: %w", err)
	}
	return c, nil
}

func init() {
	capture.Register(capture.Backend{Name: "greaseweazle", VendorID: VendorID, ProductID: ProductID, Open: Open})
}

func ackError(code byte) error {
	switch code {
	case ackOkay:
		return nil
	case ackBadCommand:
		return fmt.Errorf("greaseweazle: bad command")
	case ackNoIndex:
		return fmt.Errorf("greaseweazle: no index pulse")
	case ackNoTrk0:
		return fmt.Errorf("greaseweazle: no track 0")
	case ackFluxOverflow:
		return fmt.Errorf("greaseweazle: flux overflow")
	case ackFluxUnderflow:
		return fmt.Errorf("greaseweazle: flux underflow")
	case ackWrprot:
		return fmt.Errorf("greaseweazle: write protected")
	case ackNoUnit:
		return fmt.Errorf("greaseweazle: no unit")
	case ackNoBus:
		return fmt.Errorf("greaseweazle: no bus")
	case ackBadUnit:
		return fmt.Errorf("greaseweazle: invalid unit")
	case ackBadPin:
		return fmt.Errorf("greaseweazle: invalid pin")
	case ackBadCylinder:
		return fmt.Errorf("greaseweazle: invalid cylinder")
	default:
		return fmt.Errorf("greaseweazle: unknown error code %d", code)
	}
}

func (c *Client) doCommand(cmd []byte) error {
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return fmt.Errorf("read ACK: %w", err)
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("command echo mismatch (0x%02x != 0x%02x, status 0x%02x)", ack[0], cmd[0], ack[1])
	}
	return ackError(ack[1])
}

func (c *Client) fetchFirmwareVersion() (FirmwareInfo, error) {
	var info FirmwareInfo
	if err := c.doCommand([]byte{cmdGetInfo, 3, infoFirmware}); err != nil {
		return info, err
	}
	resp := make([]byte, 32)
	if _, err := io.ReadFull(c.port, resp); err != nil {
		return info, fmt.Errorf("read GET_INFO response: %w", err)
	}
	info.FwMajor = resp[0]
	info.FwMinor = resp[1]
	info.IsMainFirmware = resp[2] != 0
	info.SampleFreqHz = binary.LittleEndian.Uint32(resp[4:8])
	info.HwModel = resp[8]
	return info, nil
}

func (c *Client) Status() string {
	mode := "bootloader"
	if c.firmwareInfo.IsMainFirmware {
		mode = "main firmware"
	}
	return fmt.Sprintf("Greaseweazle %d.%d (%s), sample clock %.1f MHz",
		c.firmwareInfo.FwMajor, c.firmwareInfo.FwMinor, mode, float64(c.firmwareInfo.SampleFreqHz)/1e6)
}

func (c *Client) Seek(cylinder int) error {
	return c.doCommand([]byte{cmdSeek, 3, byte(cylinder)})
}

func (c *Client) SetHead(head int) error {
	return c.doCommand([]byte{cmdHead, 3, byte(head)})
}

func (c *Client) selectDrive(drive byte) error {
	return c.doCommand([]byte{cmdSelect, 3, drive})
}

func (c *Client) setMotor(drive byte, on bool) error {
	var state byte
	if on {
		state = 1
	}
	return c.doCommand([]byte{cmdMotor, 4, drive, state})
}

// readFlux issues CMD_READ_FLUX and returns the raw opcode/interval
// stream, terminated by the device's 0-byte end marker.
func (c *Client) readFlux(maxIndex uint16) ([]byte, error) {
	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], maxIndex)
	if err := c.doCommand(cmd); err != nil {
		return nil, fmt.Errorf("send READ_FLUX: %w", err)
	}

	var data []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.port, buf); err != nil {
			return nil, fmt.Errorf("read flux stream: %w", err)
		}
		if buf[0] == 0 {
			break
		}
		data = append(data, buf[0])
	}
	return data, nil
}

func (c *Client) getFluxStatus() error {
	return c.doCommand([]byte{cmdGetFluxStatus, 2})
}

// readN28 decodes a 28-bit value from Greaseweazle N28 encoding.
func readN28(data []byte, offset int) (uint32, error) {
	if offset+4 > len(data) {
		return 0, fmt.Errorf("insufficient data for N28 encoding at offset %d", offset)
	}
	b0, b1, b2, b3 := data[offset], data[offset+1], data[offset+2], data[offset+3]
	value := ((uint32(b0) & 0xfe) >> 1) |
		((uint32(b1) & 0xfe) << 6) |
		((uint32(b2) & 0xfe) << 13) |
		((uint32(b3) & 0xfe) << 20)
	return value, nil
}

// decodeFluxStream turns a raw Greaseweazle flux byte stream into
// 200 MHz reference-clock deltas (diskmodel §3), scaling from the
// device's own sample clock.
func decodeFluxStream(data []byte, sampleFreqHz uint32) ([]diskmodel.Delta, error) {
	if sampleFreqHz == 0 {
		return nil, fmt.Errorf("zero sample frequency")
	}
	scale := float64(diskmodel.ReferenceClockHz) / float64(sampleFreqHz)

	var deltas []diskmodel.Delta
	ticksSinceLastTransition := uint64(0)
	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b == 0xff:
			if i+1 >= len(data) {
				return nil, fmt.Errorf("incomplete opcode at offset %d", i)
			}
			opcode := data[i+1]
			i += 2
			switch opcode {
			case fluxopIndex:
				n, err := readN28(data, i)
				if err != nil {
					return nil, fmt.Errorf("INDEX operand: %w", err)
				}
				i += 4
				_ = n // index pulses don't produce a transition delta
			case fluxopSpace:
				n, err := readN28(data, i)
				if err != nil {
					return nil, fmt.Errorf("SPACE operand: %w", err)
				}
				i += 4
				ticksSinceLastTransition += uint64(n)
			default:
				return nil, fmt.Errorf("unknown flux opcode 0x%02x at offset %d", opcode, i-1)
			}
		case b < 250:
			ticksSinceLastTransition += uint64(b)
			deltas = append(deltas, scaledDelta(ticksSinceLastTransition, scale))
			ticksSinceLastTransition = 0
			i++
		default:
			if i+1 >= len(data) {
				return nil, fmt.Errorf("incomplete extended interval at offset %d", i)
			}
			ticksSinceLastTransition += 250 + uint64(b-250)*255 + uint64(data[i+1]) - 1
			deltas = append(deltas, scaledDelta(ticksSinceLastTransition, scale))
			ticksSinceLastTransition = 0
			i += 2
		}
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("no flux transitions found")
	}
	return deltas, nil
}

func scaledDelta(deviceTicks uint64, scale float64) diskmodel.Delta {
	return diskmodel.Delta(float64(deviceTicks) * scale)
}

// ReadTrack seeks are the caller's responsibility via Seek/SetHead;
// ReadTrack captures two revolutions of flux from wherever the head
// currently sits.
func (c *Client) ReadTrack(cylinder, head int) (diskmodel.DeltaTrack, error) {
	if err := c.selectDrive(0); err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("select drive: %w", err)
	}
	if err := c.setMotor(0, true); err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("motor on: %w", err)
	}

	raw, err := c.readFlux(2)
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("read flux from cylinder %d head %d: %w", cylinder, head, err)
	}
	if err := c.getFluxStatus(); err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("flux status after cylinder %d head %d: %w", cylinder, head, err)
	}

	deltas, err := decodeFluxStream(raw, c.firmwareInfo.SampleFreqHz)
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("decode flux stream at cylinder %d head %d: %w", cylinder, head, err)
	}
	return diskmodel.DeltaTrack{Cylinder: cylinder, Head: head, Deltas: deltas}, nil
}

func (c *Client) Close() error {
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}
