package mapper

import "github.com/yoshiomiyamaegones/pkg/logger"

// mapper4 implements MMC3: $8000/$8001 form a bank-select/bank-data pair, six
// character-bank registers and two program-bank registers, a scanline IRQ
// counter clocked by address-line-12 edges on the PPU's pattern-table
// accesses, and mirroring/work-RAM-protect control.
type mapper4 struct {
	data *CartridgeData

	bankRegisters [8]uint8
	bankSelect    uint8

	mirrorBit     uint8
	prgRAMProtect uint8

	irqLatch      uint8
	irqCounter    uint8
	irqEnabled    bool
	irqPending    bool
	irqReloadFlag bool

	// a12LowRun counts consecutive ppu_tick calls observed with address-line
	// 12 low; a transition to high after a run of at least 6 qualifies as the
	// rising edge that clocks the IRQ counter (spec.md §4.2).
	a12LowRun int
	a12High   bool

	prgBankCount uint8
	chrBankCount uint8
}

func newMapper4(data *CartridgeData) *mapper4 {
	m := &mapper4{
		data:          data,
		prgRAMProtect: 0x80,
		prgBankCount:  uint8(len(data.PRGROM) / 0x2000),
	}
	switch {
	case len(data.CHRROM) > 0:
		m.chrBankCount = uint8(len(data.CHRROM) / 0x400)
	case len(data.CHRRAM) > 0:
		m.chrBankCount = uint8(len(data.CHRRAM) / 0x400)
	default:
		m.chrBankCount = 8
	}
	if m.prgBankCount >= 2 {
		m.bankRegisters[6] = m.prgBankCount - 2
		m.bankRegisters[7] = m.prgBankCount - 1
	}
	return m
}

func (m *mapper4) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if len(m.data.PRGRAM) > 0 && m.prgRAMProtect&0x80 != 0 {
			return m.data.PRGRAM[addr-0x6000]
		}
		return 0

	case addr >= 0x8000:
		prgMode := (m.bankSelect >> 6) & 1
		var bank uint8
		switch {
		case addr <= 0x9FFF:
			if prgMode == 0 {
				bank = m.bankRegisters[6]
			} else {
				bank = m.prgBankCount - 2
			}
		case addr <= 0xBFFF:
			bank = m.bankRegisters[7]
		case addr <= 0xDFFF:
			if prgMode == 0 {
				bank = m.prgBankCount - 2
			} else {
				bank = m.bankRegisters[6]
			}
		default:
			bank = m.prgBankCount - 1
		}
		if bank >= m.prgBankCount {
			bank = m.prgBankCount - 1
		}
		offset := uint32(bank)*0x2000 + uint32(addr&0x1FFF)
		if offset < uint32(len(m.data.PRGROM)) {
			return m.data.PRGROM[offset]
		}
	}
	return 0
}

func (m *mapper4) WritePRG(addr uint16, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if len(m.data.PRGRAM) > 0 && m.prgRAMProtect&0x80 != 0 && m.prgRAMProtect&0x40 == 0 {
			m.data.PRGRAM[addr-0x6000] = value
		}

	case addr >= 0x8000:
		switch addr & 0xE001 {
		case 0x8000:
			m.bankSelect = value
		case 0x8001:
			regIndex := m.bankSelect & 0x07
			if regIndex >= 6 {
				if m.prgBankCount > 0 {
					m.bankRegisters[regIndex] = value % m.prgBankCount
				}
			} else if m.chrBankCount > 0 {
				m.bankRegisters[regIndex] = value % m.chrBankCount
			} else {
				m.bankRegisters[regIndex] = value
			}
		case 0xA000:
			m.mirrorBit = value & 1
		case 0xA001:
			m.prgRAMProtect = value
		case 0xC000:
			m.irqLatch = value
		case 0xC001:
			m.irqReloadFlag = true
		case 0xE000:
			m.irqEnabled = false
			m.irqPending = false
		case 0xE001:
			m.irqEnabled = true
		}
	}
}

func (m *mapper4) ReadCHR(addr uint16) uint8 {
	if addr >= 0x2000 {
		return 0
	}
	bank := m.calculateCHRBank(addr)
	if len(m.data.CHRROM) > 0 {
		if m.chrBankCount > 0 {
			bank %= m.chrBankCount
		}
		offset := uint32(bank)*0x400 + uint32(addr&0x3FF)
		if offset < uint32(len(m.data.CHRROM)) {
			return m.data.CHRROM[offset]
		}
		return 0
	}
	if m.chrBankCount > 0 {
		bank %= m.chrBankCount
	}
	offset := uint32(bank)*0x400 + uint32(addr&0x3FF)
	if offset < uint32(len(m.data.CHRRAM)) {
		return m.data.CHRRAM[offset]
	}
	return 0
}

func (m *mapper4) WriteCHR(addr uint16, value uint8) {
	if addr >= 0x2000 || len(m.data.CHRRAM) == 0 {
		return
	}
	bank := m.calculateCHRBank(addr)
	if m.chrBankCount > 0 {
		bank %= m.chrBankCount
	}
	offset := uint32(bank)*0x400 + uint32(addr&0x3FF)
	if offset < uint32(len(m.data.CHRRAM)) {
		m.data.CHRRAM[offset] = value
	}
}

// calculateCHRBank resolves addr to one of the six 1/2 KiB banking windows
// per the mapper's current CHR-mode bit (bankSelect bit 7).
func (m *mapper4) calculateCHRBank(addr uint16) uint8 {
	chrMode := (m.bankSelect >> 7) & 1
	low2K := func(reg, sub uint8) uint8 { return (m.bankRegisters[reg] &^ 1) + sub }

	if chrMode == 0 {
		switch {
		case addr < 0x800:
			return low2K(0, uint8(addr/0x400))
		case addr < 0x1000:
			return low2K(1, uint8((addr-0x800)/0x400))
		default:
			return m.bankRegisters[2+(addr-0x1000)/0x400]
		}
	}
	switch {
	case addr < 0x1000:
		return m.bankRegisters[2+addr/0x400]
	case addr < 0x1800:
		return low2K(0, uint8((addr-0x1000)/0x400))
	default:
		return low2K(1, uint8((addr-0x1800)/0x400))
	}
}

// Tick is the mapper's ppu_tick hook: called on every PPU pattern-table
// access, addr being the full 13-bit CHR address whose bit 12 is the line
// the MMC3's edge filter snoops.
func (m *mapper4) Tick(addr uint16) {
	high := addr&0x1000 != 0
	if !high {
		m.a12LowRun++
		m.a12High = false
		return
	}
	if !m.a12High && m.a12LowRun >= 6 {
		m.clockIRQCounter()
	}
	m.a12High = true
	m.a12LowRun = 0
}

func (m *mapper4) clockIRQCounter() {
	if m.irqCounter == 0 || m.irqReloadFlag {
		m.irqCounter = m.irqLatch
		m.irqReloadFlag = false
	} else {
		m.irqCounter--
	}
	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
		logger.LogMapper("MMC3 IRQ asserted (latch=%d)", m.irqLatch)
	}
}

func (m *mapper4) IRQPending() bool { return m.irqPending }
func (m *mapper4) ClearIRQ()        { m.irqPending = false }

func (m *mapper4) Mirroring() Mirroring {
	if m.mirrorBit == 0 {
		return MirrorVertical
	}
	return MirrorHorizontal
}

// CurrentPRGBanks reports the bank currently mapped into each of the four
// 8 KiB PRG windows ($8000, $A000, $C000, $E000), honoring the PRG-mode bit.
func (m *mapper4) CurrentPRGBanks() [4]uint8 {
	var banks [4]uint8
	prgMode := (m.bankSelect >> 6) & 1
	if prgMode == 0 {
		banks[0] = m.bankRegisters[6]
		banks[2] = m.prgBankCount - 2
	} else {
		banks[0] = m.prgBankCount - 2
		banks[2] = m.bankRegisters[6]
	}
	banks[1] = m.bankRegisters[7]
	banks[3] = m.prgBankCount - 1
	return banks
}

func (m *mapper4) DebugInfo() MapperDebugInfo {
	return MapperDebugInfo{
		BankSelect:     m.bankSelect,
		BankRegisters:  m.bankRegisters,
		PRGMode:        (m.bankSelect >> 6) & 1,
		CHRMode:        (m.bankSelect >> 7) & 1,
		MirroringMode:  m.mirrorBit,
		PRGRAMProtect:  m.prgRAMProtect,
		IRQLatch:       m.irqLatch,
		IRQCounter:     m.irqCounter,
		IRQReloadValue: m.irqLatch,
		IRQEnabled:     m.irqEnabled,
		IRQPending:     m.irqPending,
		PRGBankCount:   m.prgBankCount,
		CHRBankCount:   m.chrBankCount,
	}
}
