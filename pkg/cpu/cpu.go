package cpu

import (
	"github.com/yoshiomiyamaegones/pkg/logger"
	"github.com/yoshiomiyamaegones/pkg/memory"
)

// CPU represents the 6502 processor
type CPU struct {
	// Registers
	A  uint8  // Accumulator
	X  uint8  // X register
	Y  uint8  // Y register
	SP uint8  // Stack pointer
	PC uint16 // Program counter
	P  uint8  // Status register

	// Memory interface
	Bus *memory.Bus

	// Cycle counting
	Cycles int

	// Interrupt flags
	NMI bool
	IRQ bool

	// Halted is set once executeInstruction hits an opcode with no
	// implementation; the CPU stops fetching further instructions and
	// Step keeps returning the same Halt describing where it stopped.
	Halted     bool
	haltPC     uint16
	haltOpcode uint8

	// Debug fields for freeze detection
	lastPC       uint16
	stuckCounter int
}

// Halt describes why the CPU stopped: an opcode with no implementation,
// per spec.md's "illegal opcode halts the core" error-handling rule.
type Halt struct {
	PC     uint16
	Opcode uint8
}

// Status flag bits
const (
	FlagCarry     = 1 << 0 // C
	FlagZero      = 1 << 1 // Z
	FlagInterrupt = 1 << 2 // I
	FlagDecimal   = 1 << 3 // D
	FlagBreak     = 1 << 4 // B
	FlagUnused    = 1 << 5 // -
	FlagOverflow  = 1 << 6 // V
	FlagNegative  = 1 << 7 // N
)

// New creates a new CPU instance
func New(bus *memory.Bus) *CPU {
	return &CPU{
		Bus: bus,
		SP:  0xFD,
		P:   FlagUnused | FlagInterrupt,
	}
}

// Reset resets the CPU to initial state
func (c *CPU) Reset() {
	c.A = 0
	c.X = 0
	c.Y = 0
	c.SP = 0xFD
	c.P = FlagUnused | FlagInterrupt

	// Read reset vector
	resetVector := c.read16(0xFFFC)
	c.PC = resetVector
	c.Cycles = 0
}

// Step executes one instruction and returns the cycles it took. If the
// opcode stream hits an unimplemented instruction, Step returns a non-nil
// Halt instead of advancing further; callers must stop calling Step once
// that happens.
func (c *CPU) Step() (int, *Halt) {
	if c.Halted {
		return 0, &Halt{PC: c.haltPC, Opcode: c.haltOpcode}
	}

	// Handle interrupts
	if c.NMI {
		logger.LogCPU("NMI triggered at PC=$%04X", c.PC)
		c.handleNMI()
		c.NMI = false
		return 7, nil
	}

	if c.IRQ && !c.getFlag(FlagInterrupt) {
		logger.LogCPU("IRQ triggered at PC=$%04X", c.PC)
		c.handleIRQ()
		c.IRQ = false
		return 7, nil
	}

	// Fetch instruction
	pc := c.PC
	opcode := c.read(c.PC)
	c.PC++

	startCycles := c.Bus.TotalCycles

	// Execute instruction
	cycles := c.executeInstruction(opcode)

	if c.Halted {
		c.haltPC = pc
		c.haltOpcode = opcode
		return cycles, &Halt{PC: pc, Opcode: opcode}
	}

	// executeInstruction's return value is the instruction's true cycle
	// cost; actualCycles is how many ticks its reads/writes already paid
	// for. The gap covers internal/dummy cycles the addressing-mode and
	// opcode implementations never issue a bus access for (e.g. the spare
	// cycle in an indexed-zeropage read, or a non-branching/non-crossing
	// branch's extra cycle). Padding at instruction-end rather than at
	// each dummy read's exact position keeps PPU/APU advancement exactly
	// 3x/1x per instruction without auditing every addressing mode.
	actualCycles := c.Bus.TotalCycles - startCycles
	if want := uint64(cycles); want > actualCycles {
		for i := uint64(0); i < want-actualCycles; i++ {
			c.Bus.Tick()
		}
	}
	c.Cycles += cycles

	return cycles, nil
}

// executeInstruction is implemented in instructions.go

// handleNMI services a Non-Maskable Interrupt: the full seven-cycle
// sequence is two dummy read cycles, the PC/status push, and the vector
// fetch.
func (c *CPU) handleNMI() {
	logger.LogCPU("NMI triggered: PC=$%04X, pushing to stack", c.PC)
	c.Bus.Tick()
	c.Bus.Tick()
	c.push16(c.PC)
	c.push(c.P)
	c.setFlag(FlagInterrupt, true)
	nmiVector := c.read16(0xFFFA)
	logger.LogCPU("NMI vector: $%04X, jumping to NMI handler", nmiVector)
	c.PC = nmiVector
}

// handleIRQ services a maskable Interrupt Request; same seven-cycle shape
// as handleNMI but through the IRQ/BRK vector.
func (c *CPU) handleIRQ() {
	c.Bus.Tick()
	c.Bus.Tick()
	c.push16(c.PC)
	c.push(c.P)
	c.setFlag(FlagInterrupt, true)
	c.PC = c.read16(0xFFFE)
}

// Flag operations
func (c *CPU) getFlag(flag uint8) bool {
	return c.P&flag != 0
}

func (c *CPU) setFlag(flag uint8, value bool) {
	if value {
		c.P |= flag
	} else {
		c.P &^= flag
	}
}

// Memory operations
func (c *CPU) read(addr uint16) uint8 {
	return c.Bus.Read(addr)
}

func (c *CPU) write(addr uint16, value uint8) {
	c.Bus.Write(addr, value)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := uint16(c.read(addr))
	hi := uint16(c.read(addr + 1))
	return hi<<8 | lo
}

// Stack operations
func (c *CPU) push(value uint8) {
	c.write(0x100|uint16(c.SP), value)
	c.SP--
}

func (c *CPU) pop() uint8 {
	c.SP++
	return c.read(0x100 | uint16(c.SP))
}

func (c *CPU) push16(value uint16) {
	c.push(uint8(value >> 8))
	c.push(uint8(value & 0xFF))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.pop())
	hi := uint16(c.pop())
	return hi<<8 | lo
}

// TriggerNMI triggers a Non-Maskable Interrupt
func (c *CPU) TriggerNMI() {
	c.NMI = true
}

// TriggerIRQ triggers an Interrupt Request
func (c *CPU) TriggerIRQ() {
	c.IRQ = true
}

// GetFlag returns the state of a flag (public method for testing)
func (c *CPU) GetFlag(flag uint8) bool {
	return c.getFlag(flag)
}
