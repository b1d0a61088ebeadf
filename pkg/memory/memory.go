package memory

import (
	"github.com/gones-nes/gones/pkg/logger"
)

// ppuPort is the subset of PPU behavior the bus needs.
type ppuPort interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
}

// apuPort is the subset of APU behavior the bus needs.
type apuPort interface {
	ReadRegister(addr uint16) uint8
	WriteRegister(addr uint16, value uint8)
}

// cartridgePort is the subset of cartridge/mapper behavior the bus needs.
type cartridgePort interface {
	ReadPRG(addr uint16) uint8
	WritePRG(addr uint16, value uint8)
}

// controllerPort is a single controller shift register port.
type controllerPort interface {
	Read() uint8
	Write(value uint8)
}

// Memory implements the CPU memory map described in spec.md §4.5: 2KB
// internal RAM mirrored through $1FFF, PPU registers mirrored every 8
// bytes through $3FFF, APU/IO at $4000-$4017, cartridge space from $4020.
type Memory struct {
	RAM [2048]uint8

	// HighMem backs $6000-$FFFF when no cartridge is attached, used by
	// unit tests that exercise the bus in isolation.
	HighMem [0xA000]uint8

	PPU        ppuPort
	APU        apuPort
	Cartridge  cartridgePort
	Input      controllerPort // $4016
	Input2     controllerPort // $4017 (read side only; writes mirror $4016)
	lastOnBus  uint8

	// cpuCycle reports the CPU's running cycle count so writes reaching
	// the cartridge can be timestamped, letting mappers like MMC1 detect
	// consecutive-cycle writes. Nil outside a wired NES (e.g. bus unit
	// tests), in which case no timestamp is delivered.
	cpuCycle func() int
}

// cycleAwareCartridge is implemented by cartridges whose mapper cares
// about CPU cycle timing of writes (MMC1's consecutive-write filter).
type cycleAwareCartridge interface {
	NotifyCPUCycle(cycle int)
}

// SetCPUCycleSource wires a callback the bus uses to timestamp writes
// reaching the cartridge.
func (m *Memory) SetCPUCycleSource(fn func() int) { m.cpuCycle = fn }

// New creates an empty Memory instance.
func New() *Memory {
	return &Memory{}
}

func (m *Memory) SetCartridge(cart cartridgePort) { m.Cartridge = cart }
func (m *Memory) SetPPU(ppu ppuPort)              { m.PPU = ppu }
func (m *Memory) SetAPU(apu apuPort)              { m.APU = apu }
func (m *Memory) SetInput(input controllerPort)   { m.Input = input }
func (m *Memory) SetInput2(input controllerPort)  { m.Input2 = input }

// Read reads a byte from the given CPU address. Unmapped regions return
// the last value driven on the bus (open-bus behavior per spec.md §7).
func (m *Memory) Read(addr uint16) uint8 {
	var value uint8
	switch {
	case addr < 0x2000:
		value = m.RAM[addr&0x7FF]
	case addr < 0x4000:
		if m.PPU != nil {
			value = m.PPU.ReadRegister(0x2000 + (addr & 0x7))
		} else {
			value = m.lastOnBus
		}
	case addr == 0x4016:
		if m.Input != nil {
			value = m.Input.Read() | (m.lastOnBus &^ 0x1F)
		} else {
			value = m.lastOnBus
		}
	case addr == 0x4017:
		// $4017 reads the second controller port; frame-counter writes
		// to the same address are handled by the APU on the write side.
		if m.Input2 != nil {
			value = m.Input2.Read() | (m.lastOnBus &^ 0x1F)
		} else {
			value = m.lastOnBus
		}
	case addr == 0x4015:
		if m.APU != nil {
			value = m.APU.ReadRegister(addr)
		} else {
			value = m.lastOnBus
		}
	case addr < 0x4020:
		// Write-only APU registers read back as open bus.
		value = m.lastOnBus
	case addr >= 0x6000:
		if m.Cartridge != nil {
			value = m.Cartridge.ReadPRG(addr)
		} else {
			index := addr - 0x6000
			if int(index) < len(m.HighMem) {
				value = m.HighMem[index]
			}
		}
	default:
		// $4020-$5FFF: with a cartridge attached the mapper answers (MMC5
		// claims its $51xx registers; the others return 0); open bus only
		// without a cartridge.
		if m.Cartridge != nil {
			value = m.Cartridge.ReadPRG(addr)
		} else {
			value = m.lastOnBus
		}
	}
	m.lastOnBus = value
	return value
}

// Write writes a byte to the given CPU address. $4014 (OAM DMA) is
// special-cased by the CPU, which needs to account for the stall cycles;
// see CPU.write in pkg/cpu.
func (m *Memory) Write(addr uint16, value uint8) {
	m.lastOnBus = value

	switch {
	case addr < 0x2000:
		m.RAM[addr&0x7FF] = value

	case addr < 0x4000:
		if m.PPU != nil {
			ppuAddr := 0x2000 + (addr & 0x7)
			if ppuAddr == 0x2006 || ppuAddr == 0x2007 {
				logger.LogCPU("Memory Write PPU $%04X: value=$%02X", ppuAddr, value)
			}
			m.PPU.WriteRegister(ppuAddr, value)
		}

	case addr == 0x4016:
		if m.Input != nil {
			m.Input.Write(value)
		}
		if m.Input2 != nil {
			m.Input2.Write(value)
		}

	case addr < 0x4020:
		if m.APU != nil {
			m.APU.WriteRegister(addr, value)
		}

	case addr >= 0x6000:
		if m.Cartridge != nil {
			m.notifyCartridgeCycle()
			m.Cartridge.WritePRG(addr, value)
		} else {
			index := addr - 0x6000
			if int(index) < len(m.HighMem) {
				m.HighMem[index] = value
			}
		}

	default:
		if m.Cartridge != nil {
			m.notifyCartridgeCycle()
			m.Cartridge.WritePRG(addr, value)
		}
	}
}

func (m *Memory) notifyCartridgeCycle() {
	if m.cpuCycle == nil {
		return
	}
	if aware, ok := m.Cartridge.(cycleAwareCartridge); ok {
		aware.NotifyCPUCycle(m.cpuCycle())
	}
}

// PerformOAMDMA copies 256 bytes from CPU page `page<<8` into PPU OAM,
// starting at the current OAMADDR. Returns the number of CPU cycles the
// transfer stalls the CPU for: 513 normally, 514 if it starts on an odd
// CPU cycle (spec.md §4.2/§8).
func (m *Memory) PerformOAMDMA(page uint8, cpuCycleIsOdd bool) int {
	base := uint16(page) << 8
	for i := 0; i < 256; i++ {
		value := m.Read(base + uint16(i))
		if m.PPU != nil {
			m.PPU.WriteRegister(0x2004, value)
		}
	}
	if cpuCycleIsOdd {
		return 514
	}
	return 513
}
