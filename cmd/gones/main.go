package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gones-nes/gones/pkg/cartridge"
	"github.com/gones-nes/gones/pkg/gui"
	"github.com/gones-nes/gones/pkg/logger"
	"github.com/gones-nes/gones/pkg/nes"
	"github.com/gones-nes/gones/pkg/replay"
)

// Global debug flag
var DebugMode bool

func main() {
	// Define command line flags
	var (
		logLevel      = flag.String("log-level", "info", "Log level (off, error, warn, info, debug, trace)")
		logFile       = flag.String("log-file", "", "Log file path (empty for stdout)")
		cpuLog        = flag.Bool("cpu-log", false, "Enable CPU instruction logging")
		ppuLog        = flag.Bool("ppu-log", false, "Enable PPU logging")
		apuLog        = flag.Bool("apu-log", false, "Enable APU logging")
		mapperLog     = flag.Bool("mapper-log", false, "Enable mapper logging")
		headless      = flag.Bool("headless", false, "Run in headless mode for testing")
		testFrames    = flag.Int("test-frames", 600, "Number of frames to run in headless mode")
		debugMode     = flag.Bool("debug", false, "Enable extra debug output (reduces performance)")
		speed         = flag.Float64("speed", 1.0, "Playback speed multiplier (2.0 = double speed)")
		scale         = flag.Int("scale", 3, "Window scale factor")
		fullscreen    = flag.Bool("fullscreen", false, "Open in borderless fullscreen")
		consistentRAM = flag.Bool("consistent-ram", false, "Zero internal RAM on power-on instead of the default pseudo-random fill")
		recordPath    = flag.String("record", "", "Record input to a .playback file")
		replayPath    = flag.String("replay", "", "Drive input from a previously recorded .playback file")
	)

	flag.Usage = func() {
		fmt.Printf("Usage: %s [options] <rom_file>\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println("\nControls:")
		fmt.Println("  Z - A button")
		fmt.Println("  X - B button")
		fmt.Println("  A - Select")
		fmt.Println("  S - Start")
		fmt.Println("  Arrow keys - D-pad")
		fmt.Println("  Numpad 1/2/4/5/8/9/7/3 - second controller A/B/Select/Start/Up/Down/Left/Right")
		fmt.Println("  F12 - Screenshot")
		fmt.Println("  F3 - Toggle FPS overlay")
		fmt.Println("  ESC - Quit")
	}

	flag.Parse()

	// Check if ROM file is provided
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	romFile := flag.Arg(0)

	// Initialize logger
	level := logger.GetLogLevelFromString(*logLevel)
	err := logger.Initialize(level, *logFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	// Configure component logging
	logger.SetCPULogging(*cpuLog)
	logger.SetPPULogging(*ppuLog)
	logger.SetAPULogging(*apuLog)
	logger.SetMapperLogging(*mapperLog)

	// Set global debug mode
	DebugMode = *debugMode

	logger.LogInfo("GoNES Emulator starting...")
	logger.LogInfo("Log level: %s", *logLevel)
	if *logFile != "" {
		logger.LogInfo("Logging to file: %s", *logFile)
	}

	// Check if file exists
	if _, err := os.Stat(romFile); os.IsNotExist(err) {
		log.Fatalf("ROM file not found: %s", romFile)
	}

	// Load cartridge
	romBytes, err := os.ReadFile(romFile)
	if err != nil {
		log.Fatalf("Failed to read ROM file: %v", err)
	}

	cart, err := cartridge.LoadFromReader(bytes.NewReader(romBytes))
	if err != nil {
		logger.LogError("Failed to load ROM: %v", err)
		log.Fatalf("Failed to load ROM: %v", err)
	}

	mapperNumber := (cart.Header.Flags6 >> 4) | (cart.Header.Flags7 & 0xF0)

	logger.LogInfo("Loaded ROM: %s", filepath.Base(romFile))
	logger.LogInfo("Mapper: %d", mapperNumber)
	logger.LogInfo("PRG ROM: %d KB", len(cart.PRGROM)/1024)
	if len(cart.CHRROM) > 0 {
		logger.LogInfo("CHR ROM: %d KB", len(cart.CHRROM)/1024)
	} else {
		logger.LogInfo("CHR RAM: %d KB", len(cart.CHRRAM)/1024)
	}

	// Create NES system
	logger.LogInfo("Creating NES system...")
	nesSystem := nes.NewNES()
	nesSystem.LoadCartridge(cart)

	seed := uint64(time.Now().UnixNano())
	var player *replay.Player
	if *replayPath != "" {
		f, err := os.Open(*replayPath)
		if err != nil {
			log.Fatalf("Failed to open replay file: %v", err)
		}
		player, err = replay.Load(f)
		f.Close()
		if err != nil {
			log.Fatalf("Failed to load replay: %v", err)
		}
		if !player.Verify(romBytes) {
			log.Fatalf("Replay was recorded against a different ROM")
		}
		seed = player.Seed()
		logger.LogInfo("Replaying input from %s", *replayPath)
	}

	if *consistentRAM {
		nesSystem.Reset()
	} else {
		nesSystem.PowerCycle(seed)
	}
	logger.LogInfo("NES system initialized")

	var recorder *replay.Recorder
	if *recordPath != "" {
		recorder = replay.NewRecorder(romBytes, seed)
		logger.LogInfo("Recording input to %s", *recordPath)
	}

	if *headless {
		// Run in headless mode
		runHeadless(nesSystem, *testFrames)
	} else {
		// Create and run GUI
		logger.LogInfo("Creating GUI...")
		nesGUI, err := gui.NewNESGUI(nesSystem, gui.Options{
			Scale:      *scale,
			Fullscreen: *fullscreen,
			Speed:      *speed,
			Recorder:   recorder,
			RecordPath: *recordPath,
			Player:     player,
		})
		if err != nil {
			logger.LogError("Failed to create GUI: %v", err)
			log.Fatalf("Failed to create GUI: %v", err)
		}
		defer nesGUI.Destroy()

		logger.LogInfo("Starting emulator...")
		// Run the emulator
		nesGUI.Run()
		logger.LogInfo("Emulator stopped")
	}
}

func runHeadless(nesSystem *nes.NES, maxFrames int) {
	logger.LogInfo("Starting headless mode for %d frames", maxFrames)

	startTime := time.Now()

	for frame := 0; frame < maxFrames; frame++ {
		// Run one frame; headless mode drives no controller input.
		if err := nesSystem.StepFrame([2]nes.ControllerState{}); err != nil {
			logger.LogError("StepFrame failed: %v", err)
			break
		}
	}

	elapsed := time.Since(startTime)
	logger.LogInfo("Headless execution completed in %v", elapsed)

	// Final frame analysis
	frameBuffer := nesSystem.GetDisplayFramebufferRaw()
	analyzeFrameBuffer(frameBuffer, maxFrames-1)
}

func analyzeFrameBuffer(frameBuffer []uint32, frame int) {
	pixelCounts := make(map[uint32]int)
	totalPixels := len(frameBuffer)

	// Count unique pixel values
	for _, pixel := range frameBuffer {
		pixelCounts[pixel]++
	}

	logger.LogInfo("Frame %d analysis:", frame)
	logger.LogInfo("  Total pixels: %d", totalPixels)
	logger.LogInfo("  Unique colors: %d", len(pixelCounts))

	// Show most common colors
	for color, count := range pixelCounts {
		percentage := float64(count) / float64(totalPixels) * 100
		if percentage > 1.0 { // Only show colors that make up >1% of the image
			logger.LogInfo("  Color 0x%08X: %d pixels (%.1f%%)", color, count, percentage)
		}
	}

	// Check for non-background pixels
	nonBgCount := 0
	for color, count := range pixelCounts {
		if color != 0xFF050505 { // Not the typical background color
			nonBgCount += count
		}
	}

	if nonBgCount > 0 {
		logger.LogInfo("  Non-background pixels: %d (%.1f%%)",
			nonBgCount, float64(nonBgCount)/float64(totalPixels)*100)
	} else {
		logger.LogInfo("  All pixels are background color")
	}
}
