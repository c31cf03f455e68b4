// Package memory implements the NES memory bus: the demultiplexer that
// routes every CPU-side address to RAM, the PPU/APU register windows, the
// controller latches, OAM-DMA, or the cartridge mapper.
package memory

import "github.com/yoshiomiyamaegones/pkg/logger"

// PPUPort is the subset of the PPU the bus drives: register access plus the
// per-dot clock used to keep it in lockstep with the CPU.
type PPUPort interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
	Tick()
}

// APUPort is the subset of the APU the bus drives, including the DMC sample
// fetch contract: the APU requests a byte by address and the bus supplies it
// once it has paid the four-cycle fetch stall.
type APUPort interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
	Tick()
	PendingDMCFetch() (addr uint16, pending bool)
	CompleteDMCFetch(value uint8)
}

// CartridgePort is the subset of the cartridge the bus drives directly (PRG
// space and the $6000/$6004.. diagnostic sink); CHR-space access is driven by
// the PPU, not the bus.
type CartridgePort interface {
	ReadPRG(addr uint16) uint8
	WritePRG(addr uint16, value uint8)
}

// InputPort is one controller's register surface.
type InputPort interface {
	Read() uint8
	Write(value uint8)
}

// Bus is the NES memory map. Every CPU-visible Read/Write ticks the PPU
// three times and the APU once before performing the access, per spec's
// "every CPU memory access" rule; OAM-DMA and DMC sample fetches reuse the
// same tick primitive so the PPU/APU never fall out of lockstep with the
// CPU, even while the CPU is stalled.
type Bus struct {
	RAM [2048]uint8

	PPU       PPUPort
	APU       APUPort
	Cartridge CartridgePort
	Input1    InputPort
	Input2    InputPort

	// TotalCycles counts CPU-equivalent cycles elapsed (one per tick()).
	TotalCycles uint64
}

// New creates an unconnected Bus; SetPPU/SetAPU/SetCartridge/SetInput wire
// the rest of the system in before first use.
func New() *Bus {
	return &Bus{}
}

func (b *Bus) SetPPU(ppu PPUPort)             { b.PPU = ppu }
func (b *Bus) SetAPU(apu APUPort)             { b.APU = apu }
func (b *Bus) SetCartridge(cart CartridgePort) { b.Cartridge = cart }
func (b *Bus) SetInput(p1, p2 InputPort) {
	b.Input1 = p1
	b.Input2 = p2
}

// tick advances the PPU three dots and the APU one cycle: a single CPU cycle
// of progress, with no further side effects.
func (b *Bus) tick() {
	if b.PPU != nil {
		b.PPU.Tick()
		b.PPU.Tick()
		b.PPU.Tick()
	}
	if b.APU != nil {
		b.APU.Tick()
	}
	b.TotalCycles++
}

// Tick is the public per-access heartbeat: one CPU cycle, plus (when the APU
// has a DMC sample buffer to refill) the four-cycle fetch stall and the
// fetch itself, all ticked inline so the PPU/APU never miss a beat even
// while servicing the stall.
func (b *Bus) Tick() {
	b.tick()
	if b.APU == nil {
		return
	}
	if addr, pending := b.APU.PendingDMCFetch(); pending {
		for i := 0; i < 4; i++ {
			b.tick()
		}
		value := b.readNoTick(addr)
		b.APU.CompleteDMCFetch(value)
	}
}

// Read performs a ticked CPU memory read.
func (b *Bus) Read(addr uint16) uint8 {
	b.Tick()
	return b.readNoTick(addr)
}

// Write performs a ticked CPU memory write.
func (b *Bus) Write(addr uint16, value uint8) {
	b.Tick()
	b.writeNoTick(addr, value)
}

func (b *Bus) readNoTick(addr uint16) uint8 {
	switch {
	case addr < 0x2000:
		return b.RAM[addr&0x7FF]
	case addr < 0x4000:
		if b.PPU != nil {
			return b.PPU.ReadRegister(0x2000 + (addr & 0x7))
		}
	case addr == 0x4016:
		if b.Input1 != nil {
			return b.Input1.Read()
		}
	case addr == 0x4017:
		if b.Input2 != nil {
			return b.Input2.Read()
		}
	case addr < 0x4018:
		if b.APU != nil {
			return b.APU.ReadRegister(addr)
		}
	case addr < 0x4020:
		// disabled range
	case addr >= 0x4020:
		if b.Cartridge != nil {
			return b.Cartridge.ReadPRG(addr)
		}
	}
	return 0
}

func (b *Bus) writeNoTick(addr uint16, value uint8) {
	switch {
	case addr < 0x2000:
		b.RAM[addr&0x7FF] = value
	case addr < 0x4000:
		if b.PPU != nil {
			b.PPU.WriteRegister(0x2000+(addr&0x7), value)
		}
	case addr == 0x4014:
		b.doOAMDMA(value)
	case addr == 0x4016:
		if b.Input1 != nil {
			b.Input1.Write(value)
		}
		if b.Input2 != nil {
			b.Input2.Write(value)
		}
	case addr < 0x4018:
		if b.APU != nil {
			b.APU.WriteRegister(addr, value)
		}
	case addr < 0x4020:
		// disabled range
	case addr >= 0x4020:
		if b.Cartridge != nil {
			b.Cartridge.WritePRG(addr, value)
		}
	}
}

// doOAMDMA performs the 256-byte page copy into PPU OAM, stealing 513 CPU
// cycles (514 if the transfer starts on an odd CPU cycle) while still
// ticking the PPU and APU for every one of those cycles.
func (b *Bus) doOAMDMA(page uint8) {
	logger.LogCPU("OAM DMA from page $%02X00", page)
	base := uint16(page) << 8

	b.tick() // one dummy alignment cycle
	if b.TotalCycles%2 == 1 {
		b.tick() // an extra cycle when the transfer starts on an odd cycle
	}
	for i := 0; i < 256; i++ {
		b.tick()
		value := b.readNoTick(base + uint16(i))
		b.tick()
		if b.PPU != nil {
			b.PPU.WriteRegister(0x2004, value)
		}
	}
}
