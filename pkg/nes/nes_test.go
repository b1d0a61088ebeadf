package nes

import (
	"testing"

	"github.com/gones-nes/gones/pkg/cartridge"
	"github.com/gones-nes/gones/pkg/cartridge/mapper"
)

// newTestCartridge builds a minimal NROM cartridge with a reset vector
// pointing at a tight loop, enough to drive StepFrame/Clone without
// needing a real game ROM.
func newTestCartridge() *cartridge.Cartridge {
	prgROM := make([]uint8, 32*1024)

	// INC $00; JMP $8000 - churns zero page and PPU cycles forever so
	// successive frames produce distinguishable, deterministic state.
	prgROM[0] = 0xE6 // INC zp
	prgROM[1] = 0x00
	prgROM[2] = 0x4C // JMP abs
	prgROM[3] = 0x00
	prgROM[4] = 0x80

	prgROM[0x7FFC] = 0x00 // reset vector low
	prgROM[0x7FFD] = 0x80 // reset vector high

	cartData := &mapper.CartridgeData{PRGROM: prgROM, CHRRAM: make([]uint8, 8*1024)}
	return &cartridge.Cartridge{
		PRGROM: prgROM,
		CHRRAM: cartData.CHRRAM,
		Mapper: mapper.NewMapper0(cartData),
	}
}

func newTestNES() *NES {
	n := NewNES()
	n.LoadCartridge(newTestCartridge())
	n.Reset()
	return n
}

func TestStepFrameRequiresCartridge(t *testing.T) {
	n := NewNES()
	if err := n.StepFrame([2]ControllerState{}); err == nil {
		t.Error("expected an error from StepFrame with no cartridge loaded")
	}
}

func TestStepFrameLatchesControllerState(t *testing.T) {
	n := newTestNES()

	inputs := [2]ControllerState{0x01, 0x80} // port1=A, port2=Right
	if err := n.StepFrame(inputs); err != nil {
		t.Fatalf("StepFrame returned error: %v", err)
	}

	if n.Input.GetButtons() != 0x01 {
		t.Errorf("expected port 1 buttons 0x01, got 0x%02X", n.Input.GetButtons())
	}
	if n.Input2.GetButtons() != 0x80 {
		t.Errorf("expected port 2 buttons 0x80, got 0x%02X", n.Input2.GetButtons())
	}
}

// TestCloneSnapshotRoundTrip exercises spec.md's Snapshot round-trip
// property: cloning, mutating the original, then continuing the clone
// from the cloned point produces state independent of the original's
// subsequent execution.
func TestCloneSnapshotRoundTrip(t *testing.T) {
	n := newTestNES()

	for i := 0; i < 3; i++ {
		if err := n.StepFrame([2]ControllerState{}); err != nil {
			t.Fatalf("StepFrame returned error: %v", err)
		}
	}

	snapshot := n.Clone()
	snapshotCycles := snapshot.Cycles
	snapshotRAM := snapshot.Memory.RAM[0]

	// Advance the original further; the snapshot must not observe this.
	for i := 0; i < 3; i++ {
		if err := n.StepFrame([2]ControllerState{}); err != nil {
			t.Fatalf("StepFrame returned error: %v", err)
		}
	}

	if snapshot.Cycles != snapshotCycles {
		t.Errorf("snapshot cycles changed after mutating the original: %d -> %d", snapshotCycles, snapshot.Cycles)
	}
	if snapshot.Memory.RAM[0] != snapshotRAM {
		t.Errorf("snapshot RAM changed after mutating the original: %d -> %d", snapshotRAM, snapshot.Memory.RAM[0])
	}
	if n.Cycles == snapshot.Cycles {
		t.Error("original should have advanced past the snapshot")
	}

	// Restoring means continuing to step the snapshot instead; it should
	// still run correctly from where it was frozen.
	if err := snapshot.StepFrame([2]ControllerState{}); err != nil {
		t.Fatalf("StepFrame on restored snapshot returned error: %v", err)
	}
	if snapshot.Cycles <= snapshotCycles {
		t.Error("restored snapshot should advance when stepped")
	}
}

// TestDeterminism exercises spec.md's Determinism property: two consoles
// built from the same cartridge and fed the identical per-frame
// ControllerState sequence produce bit-identical state.
func TestDeterminism(t *testing.T) {
	cartA := newTestCartridge()
	cartB := newTestCartridge()

	a := NewNES()
	a.LoadCartridge(cartA)
	a.Reset()

	b := NewNES()
	b.LoadCartridge(cartB)
	b.Reset()

	sequence := [][2]ControllerState{
		{0x01, 0x00},
		{0x00, 0x00},
		{0x10, 0x02},
		{0x00, 0x00},
	}

	for _, inputs := range sequence {
		if err := a.StepFrame(inputs); err != nil {
			t.Fatalf("console A StepFrame returned error: %v", err)
		}
		if err := b.StepFrame(inputs); err != nil {
			t.Fatalf("console B StepFrame returned error: %v", err)
		}
	}

	if a.Cycles != b.Cycles {
		t.Errorf("cycle counts diverged: %d vs %d", a.Cycles, b.Cycles)
	}
	if a.Frame != b.Frame {
		t.Errorf("frame counts diverged: %d vs %d", a.Frame, b.Frame)
	}
	if a.Memory.RAM != b.Memory.RAM {
		t.Error("RAM diverged between two identically-driven consoles")
	}
	if a.CPU.PC != b.CPU.PC || a.CPU.A != b.CPU.A || a.CPU.X != b.CPU.X || a.CPU.Y != b.CPU.Y {
		t.Error("CPU register state diverged between two identically-driven consoles")
	}
}
