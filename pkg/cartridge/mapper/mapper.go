// Package mapper implements cartridge mapper virtualization: the circuits that
// translate CPU and PPU logical addresses into physical ROM/RAM banks.
package mapper

import "fmt"

// Mirroring describes how the PPU's 2 KiB nametable buffer is aliased across
// its 4 KiB nametable address space.
type Mirroring uint8

const (
	MirrorHorizontal Mirroring = iota
	MirrorVertical
	MirrorSingleLower
	MirrorSingleUpper
	MirrorFourScreen
)

// Mapper is the cartridge-side virtualization contract. Tick is invoked on
// every PPU pattern-table access and is the hook MMC3 uses to detect the
// address-line-12 edges that drive its scanline IRQ counter.
type Mapper interface {
	ReadPRG(addr uint16) uint8
	WritePRG(addr uint16, value uint8)
	ReadCHR(addr uint16) uint8
	WriteCHR(addr uint16, value uint8)
	Tick(addr uint16)
	IRQPending() bool
	ClearIRQ()
	Mirroring() Mirroring
}

// MapperDebugInfo summarizes a mapper's live register state for diagnostic
// tools; not part of the core Mapper contract.
type MapperDebugInfo struct {
	BankSelect     uint8
	BankRegisters  [8]uint8
	PRGMode        uint8
	CHRMode        uint8
	MirroringMode  uint8
	PRGRAMProtect  uint8
	IRQLatch       uint8
	IRQCounter     uint8
	IRQReloadValue uint8
	IRQEnabled     bool
	IRQPending     bool
	PRGBankCount   uint8
	CHRBankCount   uint8
}

// Debuggable is implemented by mappers that expose extra diagnostic state
// beyond the Mapper interface, for tools like rom_analyzer.
type Debuggable interface {
	CurrentPRGBanks() [4]uint8
	DebugInfo() MapperDebugInfo
}

// CartridgeData is the immutable image data handed to a mapper at construction.
type CartridgeData struct {
	PRGROM          []uint8
	CHRROM          []uint8
	PRGRAM          []uint8
	CHRRAM          []uint8
	HeaderMirroring Mirroring
}

// New constructs the mapper identified by mapperNumber.
func New(mapperNumber uint8, data *CartridgeData) (Mapper, error) {
	switch mapperNumber {
	case 0:
		return newMapper0(data), nil
	case 1:
		return newMapper1(data), nil
	case 2:
		return newMapper2(data), nil
	case 3:
		return newMapper3(data), nil
	case 4:
		return newMapper4(data), nil
	default:
		return nil, fmt.Errorf("unsupported mapper: %d", mapperNumber)
	}
}
