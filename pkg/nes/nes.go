// Package nes wires the CPU, PPU, APU, cartridge mapper, and bus into a
// single running console and drives it one instruction at a time.
package nes

import (
	"fmt"

	"github.com/yoshiomiyamaegones/pkg/apu"
	"github.com/yoshiomiyamaegones/pkg/cartridge"
	"github.com/yoshiomiyamaegones/pkg/cpu"
	"github.com/yoshiomiyamaegones/pkg/input"
	"github.com/yoshiomiyamaegones/pkg/logger"
	"github.com/yoshiomiyamaegones/pkg/memory"
	"github.com/yoshiomiyamaegones/pkg/ppu"
)

// System is the complete NES console: one owned CPU/PPU/APU/mapper/bus,
// clocked cooperatively from a single goroutine. Every CPU memory access
// ticks the PPU three times and the APU once inline (see memory.Bus), so
// System itself only needs to step the CPU and sample its interrupt lines
// between instructions.
type System struct {
	CPU       *cpu.CPU
	PPU       *ppu.PPU
	APU       *apu.APU
	Bus       *memory.Bus
	Cartridge *cartridge.Cartridge
	Input1    *input.Controller
	Input2    *input.Controller

	Frame uint64
}

// NewSystem creates a console with no cartridge loaded.
func NewSystem() *System {
	n := &System{}

	n.Bus = memory.New()
	n.PPU = ppu.New()
	n.APU = apu.New()
	n.Input1 = input.New()
	n.Input2 = input.New()
	n.CPU = cpu.New(n.Bus)

	n.Bus.SetPPU(n.PPU)
	n.Bus.SetAPU(n.APU)
	n.Bus.SetInput(n.Input1, n.Input2)

	return n
}

// LoadCartridge attaches a cartridge to the bus and PPU.
func (n *System) LoadCartridge(cart *cartridge.Cartridge) {
	n.Cartridge = cart
	n.Bus.SetCartridge(cart)
	n.PPU.SetCartridge(cart)
}

// Reset resets every component to power-on state.
func (n *System) Reset() {
	n.CPU.Reset()
	n.PPU.Reset()
	n.APU.Reset()
	n.Frame = 0
}

// RunFrame steps the CPU until the PPU completes a frame, or the CPU halts
// on an unimplemented opcode. It returns the halt, if any; the caller must
// stop calling RunFrame once a halt is returned.
func (n *System) RunFrame() (*cpu.Halt, error) {
	if n.Cartridge == nil {
		return nil, fmt.Errorf("no cartridge loaded")
	}

	const maxInstructions = 200000 // generous upper bound for one frame's worth of instructions
	for i := 0; i < maxInstructions && !n.PPU.FrameComplete; i++ {
		_, halt := n.CPU.Step()
		if halt != nil {
			logger.LogCPU("halted at PC=$%04X on opcode $%02X", halt.PC, halt.Opcode)
			return halt, nil
		}

		// Interrupt lines are level-sampled between instructions, not
		// polled mid-instruction.
		if n.PPU.NMIRequested {
			n.CPU.TriggerNMI()
			n.PPU.NMIRequested = false
		}
		if n.PPU.IsMapperIRQPending() {
			n.CPU.TriggerIRQ()
			n.PPU.ClearMapperIRQ()
		}
	}

	n.PPU.FrameComplete = false
	n.Frame = n.PPU.Frame
	return nil, nil
}

// GetInput returns the controller for the given player (1 or 2).
func (n *System) GetInput(player int) *input.Controller {
	if player == 2 {
		return n.Input2
	}
	return n.Input1
}

// GetFramebuffer returns the current framebuffer as RGBA bytes.
func (n *System) GetFramebuffer() []uint8 {
	return n.PPU.GetFramebuffer()
}

// GetFrame returns the current frame number.
func (n *System) GetFrame() uint64 {
	return n.Frame
}

// GetFramebufferRaw returns the raw framebuffer as 32-bit pixels.
func (n *System) GetFramebufferRaw() []uint32 {
	return n.PPU.FrameBuffer[:]
}
