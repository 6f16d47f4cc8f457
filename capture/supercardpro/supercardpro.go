// Package supercardpro talks to a SuperCard Pro USB flux reader over
// its binary command protocol ([cmd][len][data...][checksum], echoed
// reply [cmd][status]) and turns its raw 16-bit flux interval stream
// into diskmodel.DeltaTrack values. The command set and checksum
// framing come straight from the reference client; the flux-to-delta
// conversion is new, since this module's pll package — not a
// per-adapter PLL — owns clock recovery.
package supercardpro

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/vintage-drives/mfmflux/capture"
	"github.com/vintage-drives/mfmflux/diskmodel"
)

const (
	VendorID  = 0x0403
	ProductID = 0x6015
)

// SCP command codes.
const (
	cmdSelA        = 0x80
	cmdSelB        = 0x81
	cmdDselA       = 0x82
	cmdDselB       = 0x83
	cmdMtrAOn      = 0x84
	cmdMtrBOn      = 0x85
	cmdMtrAOff     = 0x86
	cmdMtrBOff     = 0x87
	cmdSeek0       = 0x88
	cmdStepTo      = 0x89
	cmdSide        = 0x8d
	cmdReadFlux    = 0xa0
	cmdGetFluxInfo = 0xa1
	cmdSendRAMUSB  = 0xa9
	cmdSCPInfo     = 0xd0
)

const statusOK = 0x4f

// FluxInfo is one revolution's index-pulse timing and bitcell count
// from GETFLUXINFO.
type FluxInfo struct {
	IndexTime  uint32 // units of 25ns
	NrBitcells uint32
}

// FluxData holds up to 5 revolutions of flux info plus the raw
// interval bytes read back from the device's capture RAM.
type FluxData struct {
	Info [5]FluxInfo
	Data []byte
}

// Client wraps a serial connection to a SuperCard Pro device.
type Client struct {
	port serial.Port
}

// Open implements capture.Factory for this backend.
func Open(portName string, baudRate int) (capture.Device, error) {
	if baudRate == 0 {
		baudRate = 115200
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("supercardpro: open serial port %s: %w", portName, err)
	}
	return &Client{port: port}, nil
}

func init() {
	capture.Register(capture.Backend{Name: "supercardpro", VendorID: VendorID, ProductID: ProductID, Open: Open})
}

// scpSend implements the SCP wire protocol: a checksummed command
// packet, an optional bulk read (for SENDRAM_USB), then a 2-byte
// [cmd-echo][status] reply.
func (c *Client) scpSend(cmd byte, data []byte, readData []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("supercardpro: command data length %d exceeds 255", len(data))
	}
	packet := make([]byte, 3+len(data))
	packet[0] = cmd
	packet[1] = byte(len(data))
	copy(packet[2:2+len(data)], data)
	checksum := byte(0x4a)
	for _, b := range packet[:2+len(data)] {
		checksum += b
	}
	packet[2+len(data)] = checksum

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("write command packet: %w", err)
	}
	if cmd == cmdSendRAMUSB && readData != nil {
		if _, err := io.ReadFull(c.port, readData); err != nil {
			return fmt.Errorf("read RAM data: %w", err)
		}
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(c.port, resp); err != nil {
		return fmt.Errorf("read command response: %w", err)
	}
	if resp[0] != cmd {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, got 0x%02x", cmd, resp[0])
	}
	if resp[1] != statusOK {
		return fmt.Errorf("command failed with status 0x%02x", resp[1])
	}
	return nil
}

// SCPInfo is the hardware/firmware version pair from SCPINFO.
type SCPInfo struct {
	HardwareMajor, HardwareMinor uint8
	FirmwareMajor, FirmwareMinor uint8
}

func (c *Client) getSCPInfo() (SCPInfo, error) {
	var info SCPInfo
	if err := c.scpSend(cmdSCPInfo, nil, nil); err != nil {
		return info, err
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(c.port, resp); err != nil {
		return info, fmt.Errorf("read SCPINFO response: %w", err)
	}
	info.HardwareMajor, info.HardwareMinor = resp[0]>>4, resp[0]&0x0f
	info.FirmwareMajor, info.FirmwareMinor = resp[1]>>4, resp[1]&0x0f
	return info, nil
}

func (c *Client) Status() string {
	info, err := c.getSCPInfo()
	if err != nil {
		return fmt.Sprintf("SuperCard Pro (status unavailable: %v)", err)
	}
	return fmt.Sprintf("SuperCard Pro hw %d.%d fw %d.%d",
		info.HardwareMajor, info.HardwareMinor, info.FirmwareMajor, info.FirmwareMinor)
}

func (c *Client) selectDrive() error {
	if err := c.scpSend(cmdSelA, nil, nil); err != nil {
		return fmt.Errorf("select drive: %w", err)
	}
	return c.scpSend(cmdMtrAOn, nil, nil)
}

func (c *Client) Seek(cylinder int) error {
	if cylinder == 0 {
		return c.scpSend(cmdSeek0, nil, nil)
	}
	return c.scpSend(cmdStepTo, []byte{byte(cylinder)}, nil)
}

func (c *Client) SetHead(head int) error {
	return c.scpSend(cmdSide, []byte{byte(head)}, nil)
}

// readFlux captures nrRevs revolutions and returns the raw 512KB
// capture-RAM dump plus per-revolution index timing.
func (c *Client) readFlux(nrRevs uint) (*FluxData, error) {
	if err := c.scpSend(cmdReadFlux, []byte{byte(nrRevs), 1}, nil); err != nil {
		return nil, fmt.Errorf("send READFLUX: %w", err)
	}
	if err := c.scpSend(cmdGetFluxInfo, nil, nil); err != nil {
		return nil, fmt.Errorf("send GETFLUXINFO: %w", err)
	}
	infoData := make([]byte, 40)
	if _, err := io.ReadFull(c.port, infoData); err != nil {
		return nil, fmt.Errorf("read flux info: %w", err)
	}
	fd := &FluxData{}
	for i := 0; i < 5; i++ {
		off := i * 8
		fd.Info[i].IndexTime = binary.BigEndian.Uint32(infoData[off : off+4])
		fd.Info[i].NrBitcells = binary.BigEndian.Uint32(infoData[off+4 : off+8])
	}

	ramCmd := make([]byte, 8)
	binary.BigEndian.PutUint32(ramCmd[0:4], 0)
	binary.BigEndian.PutUint32(ramCmd[4:8], 512*1024)
	fd.Data = make([]byte, 512*1024)
	if err := c.scpSend(cmdSendRAMUSB, ramCmd, fd.Data); err != nil {
		return nil, fmt.Errorf("read flux RAM: %w", err)
	}
	return fd, nil
}

// decodeFluxData turns SCP's 16-bit, 25ns-unit interval stream into
// 200 MHz reference-clock deltas covering the first revolution.
func decodeFluxData(fd *FluxData) ([]diskmodel.Delta, error) {
	if len(fd.Data) == 0 {
		return nil, fmt.Errorf("empty flux data")
	}
	if fd.Info[0].IndexTime == 0 {
		return nil, fmt.Errorf("invalid flux info")
	}
	revolutionNs := uint64(fd.Info[0].IndexTime) * 25

	var deltas []diskmodel.Delta
	accumNs := uint64(0)
	offset := 0
	for offset+2 <= len(fd.Data) {
		val := binary.BigEndian.Uint16(fd.Data[offset : offset+2])
		offset += 2
		if val == 0 {
			accumNs += 0x10000 * 25
			continue
		}
		accumNs += uint64(val) * 25
		if accumNs > revolutionNs {
			break
		}
		deltas = append(deltas, diskmodel.Delta(diskmodel.NsToTicks(accumNs)))
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("no flux transitions found in first revolution")
	}
	// Re-derive deltas between consecutive transitions rather than
	// cumulative-from-index values.
	out := make([]diskmodel.Delta, len(deltas))
	prev := diskmodel.Delta(0)
	for i, d := range deltas {
		out[i] = d - prev
		prev = d
	}
	return out, nil
}

func (c *Client) ReadTrack(cylinder, head int) (diskmodel.DeltaTrack, error) {
	if err := c.selectDrive(); err != nil {
		return diskmodel.DeltaTrack{}, err
	}
	fd, err := c.readFlux(2)
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("read flux at cylinder %d head %d: %w", cylinder, head, err)
	}
	deltas, err := decodeFluxData(fd)
	if err != nil {
		return diskmodel.DeltaTrack{}, fmt.Errorf("decode flux at cylinder %d head %d: %w", cylinder, head, err)
	}
	return diskmodel.DeltaTrack{Cylinder: cylinder, Head: head, Deltas: deltas}, nil
}

func (c *Client) Close() error {
	_ = c.scpSend(cmdMtrAOff, nil, nil)
	_ = c.scpSend(cmdDselA, nil, nil)
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}
