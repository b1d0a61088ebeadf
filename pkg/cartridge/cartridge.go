package cartridge

import (
	"io"

	"github.com/pkg/errors"

	"github.com/gones-nes/gones/pkg/cartridge/mapper"
)

// Cartridge represents a NES cartridge
type Cartridge struct {
	// ROM data
	PRGROM []uint8 // Program ROM
	CHRROM []uint8 // Character ROM

	// RAM data
	PRGRAM []uint8 // Program RAM (SRAM)
	CHRRAM []uint8 // Character RAM

	// Header information
	Header iNESHeader

	// Mapper
	Mapper mapper.Mapper

	// Mirroring
	Mirroring MirroringMode

	// Submapper distinguishes board variants sharing a mapper number
	// (NES 2.0 only; zero for iNES 1.0 ROMs).
	Submapper uint8
}

// iNESHeader represents the iNES file header
type iNESHeader struct {
	Magic      [4]uint8 // "NES\x1A"
	PRGROMSize uint8    // Size of PRG ROM in 16KB units
	CHRROMSize uint8    // Size of CHR ROM in 8KB units
	Flags6     uint8    // Mapper, mirroring, battery, trainer
	Flags7     uint8    // Mapper, VS/Playchoice, NES 2.0
	Flags8     uint8    // PRG-RAM size (rarely used)
	Flags9     uint8    // TV system (rarely used)
	Flags10    uint8    // TV system, PRG-RAM presence (unofficial)
	Padding    [5]uint8 // Bytes 11-15: zero in iNES 1.0; NES 2.0 byte 11 holds the CHR-RAM sizes
}

// MirroringMode represents the mirroring mode
type MirroringMode int

const (
	MirroringHorizontal MirroringMode = iota
	MirroringVertical
	MirroringFourScreen
	MirroringSingleScreenA
	MirroringSingleScreenB
)

// LoadFromReader loads a cartridge from an iNES file
func LoadFromReader(reader io.Reader) (*Cartridge, error) {
	cart := &Cartridge{}

	// Read header
	err := cart.readHeader(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	// Validate header
	if string(cart.Header.Magic[:]) != "NES\x1A" {
		return nil, errors.New("invalid iNES magic number")
	}

	// Skip trainer if present
	if cart.Header.Flags6&0x04 != 0 {
		trainer := make([]uint8, 512)
		_, err := io.ReadFull(reader, trainer)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read trainer")
		}
	}

	// Read PRG ROM
	prgSize := int(cart.Header.PRGROMSize) * 16384
	cart.PRGROM = make([]uint8, prgSize)
	_, err = io.ReadFull(reader, cart.PRGROM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read PRG ROM")
	}

	// Read CHR ROM
	chrSize := int(cart.Header.CHRROMSize) * 8192
	if chrSize > 0 {
		cart.CHRROM = make([]uint8, chrSize)
		_, err = io.ReadFull(reader, cart.CHRROM)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CHR ROM")
		}
	} else {
		// CHR RAM - NES 2.0 carries an explicit shift-count size in the
		// low nibble of byte 11 (Padding[0]); absent that (iNES 1.0), fall
		// back to the 8KB most games assume.
		chrRAMSize := 8192
		if isNES20(cart.Header) {
			if shift := cart.Header.Padding[0] & 0x0F; shift != 0 {
				chrRAMSize = 64 << shift
			}
		}

		cart.CHRRAM = make([]uint8, chrRAMSize)
	}

	// PRG RAM: NES 2.0 encodes the volatile PRG-RAM size in Flags10's low
	// nibble and the battery-backed size in its high nibble. PRG RAM is
	// allocated only for battery-backed boards, sized from the high
	// nibble; without NES 2.0 info, 8KB covers the vast majority of them.
	if cart.Header.Flags6&0x02 != 0 {
		prgRAMSize := 8192
		if isNES20(cart.Header) {
			if shift := cart.Header.Flags10 >> 4; shift != 0 {
				prgRAMSize = 64 << shift
			}
		}
		cart.PRGRAM = make([]uint8, prgRAMSize)
	}

	if isNES20(cart.Header) {
		// NES 2.0 byte 8's high nibble carries the submapper number (the
		// low nibble, mapper bits 8-11, isn't consumed here since none of
		// the supported mappers exceed 8 bits).
		cart.Submapper = cart.Header.Flags8 >> 4
	}

	// Determine mirroring
	if cart.Header.Flags6&0x08 != 0 {
		cart.Mirroring = MirroringFourScreen
	} else if cart.Header.Flags6&0x01 != 0 {
		cart.Mirroring = MirroringVertical
	} else {
		cart.Mirroring = MirroringHorizontal
	}

	// Create mapper
	mapperNumber := mapperNumberFromHeader(cart.Header)

	// Create mapper data
	mapperData := &mapper.CartridgeData{
		PRGROM: cart.PRGROM,
		CHRROM: cart.CHRROM,
		PRGRAM: cart.PRGRAM,
		CHRRAM: cart.CHRRAM,
	}

	cart.Mapper, err = mapper.NewMapper(mapperNumber, mapperData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mapper")
	}

	return cart, nil
}

// readHeader reads the iNES header
func (c *Cartridge) readHeader(reader io.Reader) error {
	headerBytes := make([]uint8, 16)
	_, err := io.ReadFull(reader, headerBytes)
	if err != nil {
		return err
	}

	copy(c.Header.Magic[:], headerBytes[0:4])
	c.Header.PRGROMSize = headerBytes[4]
	c.Header.CHRROMSize = headerBytes[5]
	c.Header.Flags6 = headerBytes[6]
	c.Header.Flags7 = headerBytes[7]
	c.Header.Flags8 = headerBytes[8]
	c.Header.Flags9 = headerBytes[9]
	c.Header.Flags10 = headerBytes[10]
	copy(c.Header.Padding[:], headerBytes[11:16])

	return nil
}

// ReadPRG reads from PRG space
func (c *Cartridge) ReadPRG(addr uint16) uint8 {
	if c.Mapper != nil {
		return c.Mapper.ReadPRG(addr)
	}
	return 0
}

// WritePRG writes to PRG space
func (c *Cartridge) WritePRG(addr uint16, value uint8) {
	if c.Mapper != nil {
		c.Mapper.WritePRG(addr, value)
	}
}

// ReadCHR reads from CHR space
func (c *Cartridge) ReadCHR(addr uint16) uint8 {
	if c.Mapper != nil {
		return c.Mapper.ReadCHR(addr)
	}
	return 0
}

// WriteCHR writes to CHR space
func (c *Cartridge) WriteCHR(addr uint16, value uint8) {
	if c.Mapper != nil {
		c.Mapper.WriteCHR(addr, value)
	}
}

// Step steps the mapper (for mappers with timing)
func (c *Cartridge) Step() {
	if c.Mapper != nil {
		c.Mapper.Step()
	}
}

// IsIRQPending returns whether mapper IRQ is pending
func (c *Cartridge) IsIRQPending() bool {
	if c.Mapper != nil {
		return c.Mapper.IsIRQPending()
	}
	return false
}

// ClearIRQ clears mapper IRQ
func (c *Cartridge) ClearIRQ() {
	if c.Mapper != nil {
		c.Mapper.ClearIRQ()
	}
}

// a12Notifiable is implemented by mappers that derive IRQ timing from the
// PPU's A12 address line (MMC3, MMC2/MMC4 CHR latches).
type a12Notifiable interface {
	NotifyA12(chrAddr uint16, renderingEnabled bool)
}

// NotifyA12 notifies the mapper of A12 line state for MMC3/MMC2-style IRQ
// and CHR-latch timing. Mappers that don't care about A12 simply don't
// implement a12Notifiable and this is a no-op.
func (c *Cartridge) NotifyA12(chrAddr uint16, renderingEnabled bool) {
	if n, ok := c.Mapper.(a12Notifiable); ok {
		n.NotifyA12(chrAddr, renderingEnabled)
	}
}

// cycleAwareMapper is implemented by mappers that need CPU cycle
// timestamps for their writes (MMC1's consecutive-write filter).
type cycleAwareMapper interface {
	NotifyCPUCycle(cycle int)
}

// NotifyCPUCycle timestamps the upcoming WritePRG call with the CPU's
// current cycle count. Mappers that don't care simply don't implement
// cycleAwareMapper and this is a no-op.
func (c *Cartridge) NotifyCPUCycle(cycle int) {
	if n, ok := c.Mapper.(cycleAwareMapper); ok {
		n.NotifyCPUCycle(cycle)
	}
}

// GetMirroring returns the current mirroring mode
func (c *Cartridge) GetMirroring() int {
	// Some mappers (like MMC1, MMC3) can change mirroring dynamically
	if mapper, ok := c.Mapper.(interface{ GetMirroringMode() uint8 }); ok {
		return int(mapper.GetMirroringMode())
	}

	// Fall back to cartridge header mirroring
	switch c.Mirroring {
	case MirroringHorizontal:
		return 0
	case MirroringVertical:
		return 1
	case MirroringFourScreen:
		return 2
	case MirroringSingleScreenA:
		return 3
	case MirroringSingleScreenB:
		return 4
	default:
		return 0 // Default to horizontal
	}
}
