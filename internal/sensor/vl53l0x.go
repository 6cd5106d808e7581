package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// VL53L0X register map (the subset the driver uses).
const (
	regSysrangeStart         = 0x00
	regSystemInterruptClear  = 0x0B
	regResultInterruptStatus = 0x13
	regResultRangeStatus     = 0x14
	regIdentificationModelID = 0xC0

	vl53l0xModelID = 0xEE

	// DefaultI2CAddr is the part's power-on I2C address.
	DefaultI2CAddr = 0x29
)

// VL53L0X reads distance from an ST VL53L0X time-of-flight sensor in
// single-shot mode. It satisfies Device.
type VL53L0X struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// NewVL53L0X opens the given I2C bus ("" selects the first available) and
// verifies the part responds with the expected model ID.
func NewVL53L0X(busName string, addr uint16) (*VL53L0X, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}

	s := &VL53L0X{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: addr}}

	id, err := s.readByte(regIdentificationModelID)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("read model id: %w", err)
	}
	if id != vl53l0xModelID {
		bus.Close()
		return nil, fmt.Errorf("unexpected model id 0x%02X (want 0x%02X)", id, vl53l0xModelID)
	}
	return s, nil
}

// StartRanging triggers a single-shot measurement.
func (s *VL53L0X) StartRanging() error {
	return s.writeByte(regSysrangeStart, 0x01)
}

// DataReady reports whether the measurement interrupt is asserted.
func (s *VL53L0X) DataReady() (bool, error) {
	v, err := s.readByte(regResultInterruptStatus)
	if err != nil {
		return false, err
	}
	return v&0x07 != 0, nil
}

// ReadDistanceMm reads the measured range in millimetres.
func (s *VL53L0X) ReadDistanceMm() (int, error) {
	// The 16-bit range value sits 10 bytes into the result block.
	var buf [2]byte
	if err := s.dev.Tx([]byte{regResultRangeStatus + 10}, buf[:]); err != nil {
		return 0, fmt.Errorf("read range: %w", err)
	}
	return int(buf[0])<<8 | int(buf[1]), nil
}

// ClearInterrupt acknowledges the completed measurement.
func (s *VL53L0X) ClearInterrupt() error {
	return s.writeByte(regSystemInterruptClear, 0x01)
}

// StopRanging returns the part to standby.
func (s *VL53L0X) StopRanging() error {
	return s.writeByte(regSysrangeStart, 0x00)
}

// Close releases the I2C bus.
func (s *VL53L0X) Close() error {
	return s.bus.Close()
}

func (s *VL53L0X) readByte(reg byte) (byte, error) {
	var buf [1]byte
	if err := s.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("read reg 0x%02X: %w", reg, err)
	}
	return buf[0], nil
}

func (s *VL53L0X) writeByte(reg, val byte) error {
	if err := s.dev.Tx([]byte{reg, val}, nil); err != nil {
		return fmt.Errorf("write reg 0x%02X: %w", reg, err)
	}
	return nil
}
