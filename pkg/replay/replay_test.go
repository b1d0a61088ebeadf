package replay

import (
	"bytes"
	"testing"
)

func TestRecorderOnlyStoresChanges(t *testing.T) {
	rom := []byte{0x4E, 0x45, 0x53, 0x1A, 1, 1}
	rec := NewRecorder(rom, 42)

	rec.Observe(0, 0, 0)
	rec.Observe(1, 0, 0) // unchanged, shouldn't be stored
	rec.Observe(2, 0x01, 0)
	rec.Observe(3, 0x01, 0) // unchanged
	rec.Observe(4, 0x03, 0)

	if got := len(rec.rec.Inputs); got != 3 {
		t.Fatalf("expected 3 stored deltas, got %d", got)
	}
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	rom := []byte{0x4E, 0x45, 0x53, 0x1A, 1, 1}
	rec := NewRecorder(rom, 1234)

	rec.Observe(0, 0, 0)
	rec.Observe(5, 0x01, 0)
	rec.Observe(10, 0x01, 0x80)

	var buf bytes.Buffer
	if err := rec.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	player, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !player.Verify(rom) {
		t.Error("Verify should succeed against the same ROM bytes")
	}
	if player.Seed() != 1234 {
		t.Errorf("expected seed 1234, got %d", player.Seed())
	}

	cases := []struct {
		frame        uint64
		port1, port2 ButtonState
	}{
		{0, 0, 0},
		{3, 0, 0},
		{5, 0x01, 0},
		{9, 0x01, 0},
		{10, 0x01, 0x80},
		{100, 0x01, 0x80},
	}
	for _, c := range cases {
		p1, p2 := player.StateAt(c.frame)
		if p1 != c.port1 || p2 != c.port2 {
			t.Errorf("frame %d: expected (%02X,%02X), got (%02X,%02X)", c.frame, c.port1, c.port2, p1, p2)
		}
	}

	if !player.Done() {
		t.Error("expected all input deltas consumed")
	}
}

func TestVerifyRejectsDifferentCartridge(t *testing.T) {
	rec := NewRecorder([]byte{1, 2, 3}, 0)
	var buf bytes.Buffer
	rec.Save(&buf)

	player, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if player.Verify([]byte{4, 5, 6}) {
		t.Error("Verify should fail against different ROM bytes")
	}
}
