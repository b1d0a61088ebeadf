package nes

import (
	"github.com/pkg/errors"

	"github.com/gones-nes/gones/pkg/apu"
	"github.com/gones-nes/gones/pkg/cartridge"
	"github.com/gones-nes/gones/pkg/cpu"
	"github.com/gones-nes/gones/pkg/input"
	"github.com/gones-nes/gones/pkg/memory"
	"github.com/gones-nes/gones/pkg/ppu"
)

// ControllerState is one frame's worth of a single controller port's
// buttons, latched atomically by StepFrame rather than read off a
// Controller that could still be mutated mid-frame by an event handler.
type ControllerState = input.ControllerState

// NES wires together the CPU, PPU, APU and cartridge into a runnable
// console. It owns the cooperative single-threaded step loop: nothing in
// this package spawns goroutines, so two NES instances fed the same ROM,
// seed, and input trace produce bit-identical output.
type NES struct {
	CPU       *cpu.CPU
	PPU       *ppu.PPU
	APU       *apu.APU
	Memory    *memory.Memory
	Cartridge *cartridge.Cartridge
	Input     *input.Controller // port 1 ($4016)
	Input2    *input.Controller // port 2 ($4017)

	Cycles uint64
	Frame  uint64
}

// NewNES creates a new NES instance with no cartridge loaded.
func NewNES() *NES {
	nes := &NES{}

	nes.Memory = memory.New()
	nes.CPU = cpu.New(nes.Memory)
	nes.PPU = ppu.New(nes.Memory)
	nes.APU = apu.New()
	nes.Input = input.New()
	nes.Input2 = input.New()

	nes.Memory.SetPPU(nes.PPU)
	nes.Memory.SetAPU(nes.APU)
	nes.Memory.SetInput(nes.Input)
	nes.Memory.SetInput2(nes.Input2)
	nes.APU.SetMemory(nes.Memory)
	nes.Memory.SetCPUCycleSource(func() int { return nes.CPU.Cycles })

	return nes
}

// LoadCartridge loads a cartridge into the NES.
func (n *NES) LoadCartridge(cart *cartridge.Cartridge) {
	n.Cartridge = cart
	n.Memory.SetCartridge(cart)
	n.PPU.SetCartridge(cart)
}

// Reset performs a soft reset: CPU/PPU/APU state resets but RAM and
// cartridge RAM survive, matching the NES reset button.
func (n *NES) Reset() {
	n.CPU.Reset()
	n.PPU.Reset()
	n.APU.Reset()
	n.Cycles = 0
	n.Frame = 0
}

// PowerCycle performs a cold boot: internal RAM is filled from a
// deterministic seed rather than left at its Go zero value, mirroring the
// indeterminate-but-reproducible power-on RAM pattern real hardware
// exhibits. The same seed always yields the same RAM contents.
func (n *NES) PowerCycle(seed uint64) {
	state := seed
	for i := range n.Memory.RAM {
		state = state*6364136223846793005 + 1442695040888963407
		n.Memory.RAM[i] = uint8(state >> 56)
	}
	n.Reset()
}

// Step executes one CPU instruction (or DMA stall) and advances the PPU
// and APU by the matching number of cycles, preserving the fixed
// CPU:PPU:APU clock ratio of 1:3:0.5.
func (n *NES) Step() {
	cpuCycles := n.CPU.Step()

	for i := 0; i < cpuCycles*3; i++ {
		n.PPU.Step()

		if n.PPU.NMIRequested {
			n.CPU.TriggerNMI()
			n.PPU.NMIRequested = false
		}

		if n.PPU.IsMapperIRQPending() {
			n.CPU.TriggerIRQ()
			n.PPU.ClearMapperIRQ()
		}
	}

	for i := 0; i < cpuCycles; i++ {
		n.APU.Step()
	}
	if n.APU.FrameIRQ || n.APU.DMCIRQFlag {
		n.CPU.TriggerIRQ()
	}

	// A DMC sample fetch mid-instruction steals CPU cycles; account for
	// it on the next Step rather than retroactively, an accepted
	// approximation when the fetch doesn't need to land on an exact bus
	// cycle (spec's DMC DMA alignment is best-effort outside of the
	// dedicated alignment test ROMs).
	if stall := n.APU.TakeDMCStall(); stall > 0 {
		n.CPU.AddDMCStall(stall)
	}

	n.Cycles += uint64(cpuCycles)
}

// StepFrame latches inputs for both controller ports at the start of the
// frame, then runs the console until the PPU completes a frame. Latching
// here rather than leaving callers to mutate Input/Input2 at arbitrary
// points is what lets two NES instances fed the same per-frame
// ControllerState sequence stay bit-identical, regardless of when within
// the frame a caller happened to call SetButton.
func (n *NES) StepFrame(inputs [2]ControllerState) error {
	if n.Cartridge == nil {
		return errors.New("nes: StepFrame called with no cartridge loaded")
	}

	n.Input.SetState(inputs[0])
	n.Input2.SetState(inputs[1])

	stepCount := 0
	const maxSteps = 50000 // guards against a frozen game spinning forever

	for !n.PPU.FrameComplete {
		n.Step()
		stepCount++

		if stepCount > maxSteps {
			n.PPU.FrameComplete = true
			break
		}
	}

	n.PPU.FrameComplete = false
	n.Frame = n.PPU.Frame
	return nil
}

// GetInput returns the first controller port.
func (n *NES) GetInput() *input.Controller { return n.Input }

// GetInput2 returns the second controller port.
func (n *NES) GetInput2() *input.Controller { return n.Input2 }

// GetFramebuffer returns the current framebuffer from the PPU.
func (n *NES) GetFramebuffer() []uint8 {
	return n.PPU.GetFramebuffer()
}

// GetFrame returns the current frame number.
func (n *NES) GetFrame() uint64 { return n.Frame }

// GetFramebufferRaw returns the raw framebuffer as 32-bit pixels.
func (n *NES) GetFramebufferRaw() []uint32 {
	return n.PPU.FrameBuffer[:]
}

// GetDisplayFramebufferRaw returns the framebuffer intended for display.
func (n *NES) GetDisplayFramebufferRaw() []uint32 {
	return n.PPU.FrameBuffer[:]
}

// Clone returns an independent copy of the console suitable for
// speculative stepping (e.g. rewind, or comparing two seeded runs). CPU,
// PPU, APU and RAM are deep-copied so mutating the clone never aliases
// the original. The cartridge and its mapper are shared by reference:
// mapper bank-select state lives behind an interface this package doesn't
// own the concrete type of, so a byte-for-byte mapper clone isn't
// attempted here (see DESIGN.md).
func (n *NES) Clone() *NES {
	clone := &NES{
		Cycles: n.Cycles,
		Frame:  n.Frame,
	}

	mem := *n.Memory
	cpuCopy := *n.CPU
	ppuCopy := *n.PPU
	apuCopy := *n.APU
	in1 := *n.Input
	in2 := *n.Input2

	clone.Memory = &mem
	clone.CPU = &cpuCopy
	clone.PPU = &ppuCopy
	clone.APU = &apuCopy
	clone.Input = &in1
	clone.Input2 = &in2
	clone.Cartridge = n.Cartridge
	if n.PPU.PaletteManager != nil {
		palCopy := *n.PPU.PaletteManager
		clone.PPU.PaletteManager = &palCopy
	}

	clone.CPU.Memory = clone.Memory
	clone.Memory.SetPPU(clone.PPU)
	clone.Memory.SetAPU(clone.APU)
	clone.Memory.SetInput(clone.Input)
	clone.Memory.SetInput2(clone.Input2)
	clone.APU.SetMemory(clone.Memory)
	clone.Memory.SetCPUCycleSource(func() int { return clone.CPU.Cycles })
	if clone.Cartridge != nil {
		clone.Memory.SetCartridge(clone.Cartridge)
		clone.PPU.SetCartridge(clone.Cartridge)
	}

	clone.APU.Output = append([]float32(nil), n.APU.Output...)

	return clone
}

// GetDisplayFramebuffer returns the display framebuffer as RGBA bytes.
func (n *NES) GetDisplayFramebuffer() []uint8 {
	frameBuffer := n.PPU.FrameBuffer[:]
	rgba := make([]uint8, 256*240*4)

	for i, pixel := range frameBuffer {
		r := uint8((pixel >> 16) & 0xFF)
		g := uint8((pixel >> 8) & 0xFF)
		b := uint8(pixel & 0xFF)
		a := uint8((pixel >> 24) & 0xFF)

		rgba[i*4+0] = r
		rgba[i*4+1] = g
		rgba[i*4+2] = b
		rgba[i*4+3] = a
	}

	return rgba
}
