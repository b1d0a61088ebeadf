// Package replay implements the .playback recording format: a header
// identifying the cartridge and RNG seed used, followed by a stream of
// frame-indexed controller input deltas. Replaying a .playback file
// against the same ROM and seed reproduces the original run bit-for-bit,
// since pkg/nes's step loop has no hidden nondeterminism.
package replay

import (
	"crypto/sha256"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// ButtonState is a single controller port's 8-button state, one bit per
// button in the same order as pkg/input.Controller's button indices.
type ButtonState uint8

// Input is one frame's worth of controller state for both ports.
type Input struct {
	Frame uint64
	Port1 ButtonState
	Port2 ButtonState
}

// Header identifies the cartridge and seed a recording was made against.
type Header struct {
	// CartridgeHash is the SHA-256 of the raw ROM file, so replaying
	// against a different (or corrupted) ROM is caught up front rather
	// than desyncing silently frames later.
	CartridgeHash [32]byte
	Seed          uint64
}

// Recording is a complete .playback file: a header plus the full input
// trace. Only frames where the controller state actually changed are
// stored — StepFrame is called once per frame regardless, so unlisted
// frames simply repeat the last known state.
type Recording struct {
	Header Header
	Inputs []Input
}

// HashCartridge computes the identity hash stored in a recording's
// header from the raw ROM bytes (not the parsed Cartridge, so it's
// stable across parser changes).
func HashCartridge(romBytes []byte) [32]byte {
	return sha256.Sum256(romBytes)
}

// Recorder accumulates Input deltas as a run progresses.
type Recorder struct {
	rec      Recording
	lastPort [2]ButtonState
	started  bool
}

// NewRecorder creates a Recorder for a run against the given ROM bytes
// and seed.
func NewRecorder(romBytes []byte, seed uint64) *Recorder {
	return &Recorder{
		rec: Recording{
			Header: Header{
				CartridgeHash: HashCartridge(romBytes),
				Seed:          seed,
			},
		},
	}
}

// Observe records the controller state for the given frame if it
// differs from the last recorded state (or this is the first frame
// observed).
func (r *Recorder) Observe(frame uint64, port1, port2 ButtonState) {
	if r.started && port1 == r.lastPort[0] && port2 == r.lastPort[1] {
		return
	}
	r.started = true
	r.lastPort[0] = port1
	r.lastPort[1] = port2
	r.rec.Inputs = append(r.rec.Inputs, Input{Frame: frame, Port1: port1, Port2: port2})
}

// Save gob-encodes the recording to w.
func (r *Recorder) Save(w io.Writer) error {
	return errors.Wrap(gob.NewEncoder(w).Encode(r.rec), "failed to encode recording")
}

// Player replays a previously saved Recording, handing back the
// controller state for whatever frame is currently requested.
type Player struct {
	rec          Recording
	cursor       int
	port1, port2 ButtonState
}

// Load reads a gob-encoded Recording from r.
func Load(r io.Reader) (*Player, error) {
	var rec Recording
	if err := gob.NewDecoder(r).Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "failed to decode recording")
	}
	return &Player{rec: rec}, nil
}

// Verify reports whether romBytes match the hash stored in the
// recording's header.
func (p *Player) Verify(romBytes []byte) bool {
	return HashCartridge(romBytes) == p.rec.Header.CartridgeHash
}

// Seed returns the RNG seed the recording was made with, for
// PowerCycle.
func (p *Player) Seed() uint64 { return p.rec.Header.Seed }

// StateAt returns the controller state that should be in effect for the
// given frame, advancing through any input deltas up to and including
// that frame.
func (p *Player) StateAt(frame uint64) (port1, port2 ButtonState) {
	for p.cursor < len(p.rec.Inputs) && p.rec.Inputs[p.cursor].Frame <= frame {
		p.port1 = p.rec.Inputs[p.cursor].Port1
		p.port2 = p.rec.Inputs[p.cursor].Port2
		p.cursor++
	}
	return p.port1, p.port2
}

// Done reports whether every recorded input delta has been consumed.
func (p *Player) Done() bool {
	return p.cursor >= len(p.rec.Inputs)
}
