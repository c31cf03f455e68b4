package cartridge

import (
	"fmt"
	"io"

	"github.com/yoshiomiyamaegones/pkg/cartridge/mapper"
)

// Cartridge represents an immutable-after-load NES cartridge: program image,
// character image (or RAM), mapper id, and a mirroring hint.
type Cartridge struct {
	PRGROM []uint8
	CHRROM []uint8
	PRGRAM []uint8
	CHRRAM []uint8

	Header iNESHeader
	Mapper mapper.Mapper

	// diagnosticText accumulates, in write order, every non-zero byte written
	// to $6004-$7FFF by blargg-style test ROMs (up to 4096 bytes); a NUL byte
	// is skipped and neither ends nor resets the text. diagnosticStatus
	// mirrors $6000.
	diagnosticText   []byte
	diagnosticStatus uint8
}

// iNESHeader is the 16-byte iNES image header.
type iNESHeader struct {
	Magic      [4]uint8
	PRGROMSize uint8
	CHRROMSize uint8
	Flags6     uint8
	Flags7     uint8
	Flags8     uint8
	Flags9     uint8
	Flags10    uint8
	Padding    [5]uint8
}

// LoadFromReader parses an iNES image and constructs its mapper.
func LoadFromReader(reader io.Reader) (*Cartridge, error) {
	cart := &Cartridge{}

	if err := cart.readHeader(reader); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(cart.Header.Magic[:]) != "NES\x1A" {
		return nil, fmt.Errorf("invalid iNES magic number")
	}

	if cart.Header.Flags6&0x04 != 0 {
		trainer := make([]uint8, 512)
		if _, err := io.ReadFull(reader, trainer); err != nil {
			return nil, fmt.Errorf("failed to read trainer: %w", err)
		}
	}

	prgSize := int(cart.Header.PRGROMSize) * 16384
	if prgSize == 0 {
		return nil, fmt.Errorf("cartridge declares zero PRG ROM")
	}
	cart.PRGROM = make([]uint8, prgSize)
	if _, err := io.ReadFull(reader, cart.PRGROM); err != nil {
		return nil, fmt.Errorf("failed to read PRG ROM: %w", err)
	}

	chrSize := int(cart.Header.CHRROMSize) * 8192
	if chrSize > 0 {
		cart.CHRROM = make([]uint8, chrSize)
		if _, err := io.ReadFull(reader, cart.CHRROM); err != nil {
			return nil, fmt.Errorf("failed to read CHR ROM: %w", err)
		}
	} else {
		cart.CHRRAM = make([]uint8, 8192)
	}

	if cart.Header.Flags6&0x02 != 0 {
		cart.PRGRAM = make([]uint8, 32768)
	} else {
		// Most boards carry some work RAM even without the battery bit;
		// a fixed window keeps $6000-$7FFF addressable for all mappers.
		cart.PRGRAM = make([]uint8, 8192)
	}

	headerMirroring := mapper.MirrorHorizontal
	switch {
	case cart.Header.Flags6&0x08 != 0:
		headerMirroring = mapper.MirrorFourScreen
	case cart.Header.Flags6&0x01 != 0:
		headerMirroring = mapper.MirrorVertical
	}

	mapperNumber := (cart.Header.Flags6 >> 4) | (cart.Header.Flags7 & 0xF0)
	mapperData := &mapper.CartridgeData{
		PRGROM:          cart.PRGROM,
		CHRROM:          cart.CHRROM,
		PRGRAM:          cart.PRGRAM,
		CHRRAM:          cart.CHRRAM,
		HeaderMirroring: headerMirroring,
	}

	var err error
	cart.Mapper, err = mapper.New(mapperNumber, mapperData)
	if err != nil {
		return nil, fmt.Errorf("failed to create mapper: %w", err)
	}
	return cart, nil
}

func (c *Cartridge) readHeader(reader io.Reader) error {
	headerBytes := make([]uint8, 16)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return err
	}
	copy(c.Header.Magic[:], headerBytes[0:4])
	c.Header.PRGROMSize = headerBytes[4]
	c.Header.CHRROMSize = headerBytes[5]
	c.Header.Flags6 = headerBytes[6]
	c.Header.Flags7 = headerBytes[7]
	c.Header.Flags8 = headerBytes[8]
	c.Header.Flags9 = headerBytes[9]
	c.Header.Flags10 = headerBytes[10]
	copy(c.Header.Padding[:], headerBytes[11:16])
	return nil
}

func (c *Cartridge) ReadPRG(addr uint16) uint8 { return c.Mapper.ReadPRG(addr) }

// WritePRG delegates to the mapper and, for the $6000/$6004.. range used by
// blargg-style test ROMs, also feeds the diagnostic text sink (spec.md §4.1).
func (c *Cartridge) WritePRG(addr uint16, value uint8) {
	c.Mapper.WritePRG(addr, value)
	switch {
	case addr == 0x6000:
		c.diagnosticStatus = value
	case addr >= 0x6004 && addr < 0x8000:
		if value == 0 {
			return
		}
		if len(c.diagnosticText) < 4096 {
			c.diagnosticText = append(c.diagnosticText, value)
		}
	}
}

func (c *Cartridge) ReadCHR(addr uint16) uint8        { return c.Mapper.ReadCHR(addr) }
func (c *Cartridge) WriteCHR(addr uint16, value uint8) { c.Mapper.WriteCHR(addr, value) }
func (c *Cartridge) Tick(addr uint16)                 { c.Mapper.Tick(addr) }
func (c *Cartridge) IRQPending() bool                 { return c.Mapper.IRQPending() }
func (c *Cartridge) ClearIRQ()                        { c.Mapper.ClearIRQ() }
func (c *Cartridge) Mirroring() mapper.Mirroring      { return c.Mapper.Mirroring() }

// DiagnosticStatus returns the last byte written to $6000.
func (c *Cartridge) DiagnosticStatus() uint8 { return c.diagnosticStatus }

// DiagnosticText returns every non-zero byte written to $6004-$7FFF so far,
// in write order, for host harnesses to surface. Bytes rewritten at the same
// address are appended again rather than replacing the earlier ones.
func (c *Cartridge) DiagnosticText() string { return string(c.diagnosticText) }
