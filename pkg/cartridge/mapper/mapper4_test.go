package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMMC3(t *testing.T) Mapper {
	t.Helper()
	prg := make([]uint8, 0x2000*8)
	for bank := 0; bank < 8; bank++ {
		for i := 0; i < 0x2000; i++ {
			prg[bank*0x2000+i] = uint8(bank)
		}
	}
	chr := make([]uint8, 0x400*16)
	m, err := New(4, &CartridgeData{PRGROM: prg, CHRROM: chr})
	require.NoError(t, err)
	return m
}

func TestMapper4BankSelectDispatch(t *testing.T) {
	m := newMMC3(t)

	m.WritePRG(0x8000, 0x06) // select R6 (PRG bank, mode 0: visible at $8000)
	m.WritePRG(0x8001, 3)
	require.Equal(t, uint8(3), m.ReadPRG(0x8000))
	// $A000 is always R7, $E000 is always fixed to the last bank.
	require.Equal(t, m.ReadPRG(0xE000), uint8(7))
}

func TestMapper4Mirroring(t *testing.T) {
	m := newMMC3(t)

	m.WritePRG(0xA000, 0)
	require.Equal(t, MirrorVertical, m.Mirroring())

	m.WritePRG(0xA000, 1)
	require.Equal(t, MirrorHorizontal, m.Mirroring())
}

func TestMapper4IRQCounterClocksOnQualifyingA12Edge(t *testing.T) {
	m := newMMC3(t)
	m.WritePRG(0xC000, 4) // IRQ latch = 4
	m.WritePRG(0xC001, 0) // reload
	m.WritePRG(0xE001, 0) // enable IRQ

	tickLow := func(n int) {
		for i := 0; i < n; i++ {
			m.Tick(0x0000)
		}
	}

	tickLow(6)
	m.Tick(0x1000) // qualifying rising edge: reload (counter was 0 -> latch 4)
	require.False(t, m.IRQPending())

	for i := 0; i < 4; i++ {
		tickLow(6)
		m.Tick(0x1000)
	}
	require.True(t, m.IRQPending())
}

func TestMapper4ShortLowRunDoesNotQualify(t *testing.T) {
	m := newMMC3(t)
	m.WritePRG(0xC000, 1)
	m.WritePRG(0xC001, 0)
	m.WritePRG(0xE001, 0)

	m.Tick(0x1000) // establish high
	for i := 0; i < 3; i++ {
		m.Tick(0x0000) // low run too short
	}
	m.Tick(0x1000)
	require.False(t, m.IRQPending())
}
