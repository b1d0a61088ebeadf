package gui

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ebitengine/oto/v3"
	"github.com/gones-nes/gones/pkg/logger"
	"github.com/gones-nes/gones/pkg/nes"
	"github.com/gones-nes/gones/pkg/replay"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	WindowTitle = "GoNES - Nintendo Entertainment System Emulator"

	// Audio constants
	AudioSampleRate = 44100
	AudioBufferSize = 1024             // Standard buffer size
	AudioChannels   = 1                // Mono
	AudioFormat     = sdl.AUDIO_F32LSB // 32-bit float, little-endian

	// Timing constants
	TargetFPS = 60.0988 // NES actual framerate
)

var (
	// NTSC NES frame rate: 60.0988 FPS (more precisely: 1789773 / 29780.5 = 60.0988139...)
	// Frame time = 1,000,000,000 / 60.0988139 = 16,639,266.85 ns
	FrameTime = time.Duration(16639267) * time.Nanosecond // 16.639267ms per frame
)

// NESGUI represents the GUI for the NES emulator
type NESGUI struct {
	window        *sdl.Window
	renderer      *sdl.Renderer
	texture       *sdl.Texture
	nes           *nes.NES
	running       bool
	screenshotNum int

	// Audio
	audioDevice sdl.AudioDeviceID
	audioSpec   *sdl.AudioSpec

	// Fallback audio path used when SDL can't open a device (e.g. a
	// headless run with no configured audio driver). Feeds the same APU
	// output through oto instead.
	otoSink *OtoAudioSink

	// Timing
	lastFrameTime time.Time
	nextFrameTime time.Time

	// FPS tracking
	fpsCounter int
	fpsTimer   time.Time
	currentFPS float64
	showFPS    bool

	// Speed scales FrameTime: 2.0 runs at double speed, 0.5 at half.
	speed float64

	// Recorder captures the live input trace to a .playback file when
	// -record was passed; Player drives input from a previously
	// recorded trace when -replay was passed. At most one is non-nil.
	recorder     *replay.Recorder
	recordPath   string
	player       *replay.Player
	frameNum     uint64
}

// Options configures window and recording behavior for NewNESGUI. The
// zero value is the teacher's original fixed 3x window at normal speed.
type Options struct {
	Scale      int  // window scale factor; 0 defaults to 3
	Fullscreen bool // open in borderless fullscreen instead of a window
	Speed      float64 // playback speed multiplier; 0 defaults to 1.0

	Recorder   *replay.Recorder // non-nil to record input to a .playback file
	RecordPath string           // where Recorder is written on Destroy
	Player     *replay.Player   // non-nil to drive input from a .playback file
}

// NewNESGUI creates a new NES GUI.
func NewNESGUI(nesSystem *nes.NES, opts Options) (*NESGUI, error) {
	// Lock main thread for SDL
	runtime.LockOSThread()

	// Initialize SDL
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO); err != nil {
		return nil, err
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 3
	}
	windowFlags := uint32(sdl.WINDOW_SHOWN)
	if opts.Fullscreen {
		windowFlags |= sdl.WINDOW_FULLSCREEN_DESKTOP
	}

	// Create window
	window, err := sdl.CreateWindow(
		WindowTitle,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		256*int32(scale),
		240*int32(scale),
		windowFlags,
	)
	if err != nil {
		sdl.Quit()
		return nil, err
	}

	// Create renderer
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, err
	}

	// Set renderer blend mode to none (no color blending)
	renderer.SetDrawBlendMode(sdl.BLENDMODE_NONE)

	// Create texture for NES framebuffer (256x240 pixels, ABGR format)
	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888,
		sdl.TEXTUREACCESS_STREAMING,
		256,
		240,
	)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, err
	}

	// Set texture blend mode to none
	texture.SetBlendMode(sdl.BLENDMODE_NONE)

	speed := opts.Speed
	if speed <= 0 {
		speed = 1.0
	}

	// Initialize audio
	gui := &NESGUI{
		window:        window,
		renderer:      renderer,
		texture:       texture,
		nes:           nesSystem,
		running:       true,
		screenshotNum: 0,
		lastFrameTime: time.Now(),
		nextFrameTime: time.Now().Add(FrameTime),
		fpsTimer:      time.Now(),
		showFPS:       true,
		speed:         speed,
		recorder:      opts.Recorder,
		recordPath:    opts.RecordPath,
		player:        opts.Player,
	}

	// Setup audio device
	if err := gui.initAudio(); err != nil {
		logger.LogError("Failed to initialize SDL audio: %v", err)
		logger.LogInfo("Falling back to oto for audio output")
		if otoErr := gui.initAudioFallback(); otoErr != nil {
			logger.LogError("Failed to initialize oto audio: %v", otoErr)
			logger.LogError("Audio will be disabled.")
		}
	} else {
		logger.LogInfo("Audio initialization successful")
	}

	return gui, nil
}

// Destroy cleans up SDL resources, flushing any in-progress recording
// to disk first.
func (g *NESGUI) Destroy() {
	if g.recorder != nil && g.recordPath != "" {
		if err := g.saveRecording(); err != nil {
			logger.LogError("Failed to save recording: %v", err)
		}
	}

	// Close audio device
	if g.audioDevice != 0 {
		sdl.CloseAudioDevice(g.audioDevice)
	}
	if g.otoSink != nil {
		g.otoSink.Close()
	}

	if g.texture != nil {
		g.texture.Destroy()
	}
	if g.renderer != nil {
		g.renderer.Destroy()
	}
	if g.window != nil {
		g.window.Destroy()
	}
	sdl.Quit()
}

// Run starts the main GUI loop
func (g *NESGUI) Run() {
	frameCount := 0
	startTime := time.Now()
	frameTime := time.Duration(float64(FrameTime) / g.speed)

	for g.running {
		frameStart := time.Now()

		g.handleEvents()
		g.update()
		g.render()

		// Calculate target frame end time based on total elapsed time
		// This compensates for Sleep() inaccuracies
		frameCount++
		targetEndTime := startTime.Add(time.Duration(frameCount) * frameTime)

		now := time.Now()
		if now.Before(targetEndTime) {
			time.Sleep(targetEndTime.Sub(now))
		}
		
		// Debug: Log frame timing every 60 frames
		if frameCount%60 == 0 {
			actualFrameTime := time.Since(frameStart)
			expectedFrameTime := frameTime
			deviation := float64(actualFrameTime-expectedFrameTime) / float64(expectedFrameTime) * 100
			
			// Also check average frame rate
			avgFrameTime := time.Since(startTime) / time.Duration(frameCount)
			avgDeviation := float64(avgFrameTime-expectedFrameTime) / float64(expectedFrameTime) * 100
			
			if deviation > 5 || deviation < -5 || avgDeviation > 2 || avgDeviation < -2 {
				logger.LogInfo("Frame timing: actual=%.3fms, avg=%.3fms, expected=%.3fms, deviation=%.1f%%, avg_dev=%.1f%%",
					actualFrameTime.Seconds()*1000, avgFrameTime.Seconds()*1000, 
					expectedFrameTime.Seconds()*1000, deviation, avgDeviation)
			}
		}
		
		g.lastFrameTime = time.Now()
	}
}

// handleEvents processes SDL events
func (g *NESGUI) handleEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			g.running = false
		case *sdl.KeyboardEvent:
			g.handleKeyboard(e)
		}
	}
}

// handleKeyboard maps keyboard input to NES controller
func (g *NESGUI) handleKeyboard(event *sdl.KeyboardEvent) {
	pressed := event.State == sdl.PRESSED

	// Get input interfaces from NES system
	p1 := g.nes.GetInput()
	p2 := g.nes.GetInput2()

	switch event.Keysym.Sym {
	case sdl.K_z: // A button
		p1.SetButton(0, pressed)
	case sdl.K_x: // B button
		p1.SetButton(1, pressed)
	case sdl.K_a: // Select
		p1.SetButton(2, pressed)
	case sdl.K_s: // Start
		p1.SetButton(3, pressed)
	case sdl.K_UP:
		p1.SetButton(4, pressed)
	case sdl.K_DOWN:
		p1.SetButton(5, pressed)
	case sdl.K_LEFT:
		p1.SetButton(6, pressed)
	case sdl.K_RIGHT:
		p1.SetButton(7, pressed)

	// Second controller, numpad cluster
	case sdl.K_KP_1: // A
		p2.SetButton(0, pressed)
	case sdl.K_KP_2: // B
		p2.SetButton(1, pressed)
	case sdl.K_KP_4: // Select
		p2.SetButton(2, pressed)
	case sdl.K_KP_5: // Start
		p2.SetButton(3, pressed)
	case sdl.K_KP_8:
		p2.SetButton(4, pressed)
	case sdl.K_KP_9: // Down alt (no numpad-down-only key distinct from KP_2, reuse KP_3 for right)
		p2.SetButton(5, pressed)
	case sdl.K_KP_7:
		p2.SetButton(6, pressed)
	case sdl.K_KP_3:
		p2.SetButton(7, pressed)

	case sdl.K_ESCAPE:
		g.running = false
	case sdl.K_F12:
		if pressed {
			g.saveScreenshot()
		}
	case sdl.K_F3:
		if pressed {
			g.showFPS = !g.showFPS
		}
	}
}

// update runs the NES emulation for one frame
func (g *NESGUI) update() {
	p1 := g.nes.GetInput()
	p2 := g.nes.GetInput2()

	var inputs [2]nes.ControllerState
	if g.player != nil {
		port1, port2 := g.player.StateAt(g.frameNum)
		inputs[0] = nes.ControllerState(port1)
		inputs[1] = nes.ControllerState(port2)
	} else {
		// Live keyboard input mutates p1/p2 directly via handleKeyboard
		// between frames; read it back here so StepFrame still latches
		// whatever the player currently holds down.
		inputs[0] = p1.State()
		inputs[1] = p2.State()
	}

	if err := g.nes.StepFrame(inputs); err != nil {
		logger.LogError("StepFrame failed: %v", err)
		return
	}
	g.queueAudio()
	g.updateFPS()

	if g.recorder != nil {
		g.recorder.Observe(g.frameNum, replay.ButtonState(p1.GetButtons()), replay.ButtonState(p2.GetButtons()))
	}
	g.frameNum++
}

// render draws the current frame to the screen
func (g *NESGUI) render() {
	framebuffer := g.nes.GetDisplayFramebuffer()
	if g.showFPS {
		g.drawFPSOverlay(framebuffer)
	}
	g.texture.Update(nil, unsafe.Pointer(&framebuffer[0]), 256*4) // 4 bytes per pixel (RGBA)

	// Clear renderer
	g.renderer.SetDrawColor(0, 0, 0, 255)
	g.renderer.Clear()

	// Copy texture to renderer (scaled to window size)
	g.renderer.Copy(g.texture, nil, nil)

	// Update window title with FPS if enabled
	if g.showFPS {
		g.updateWindowTitle()
	}

	// Present the rendered frame
	g.renderer.Present()
}

// drawFPSOverlay burns the current FPS into the top-left corner of the
// framebuffer using a fixed-width bitmap font, so it's visible even when
// the window title bar is hidden (fullscreen capture, streaming).
func (g *NESGUI) drawFPSOverlay(rgba []uint8) {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: 256 * 4,
		Rect:   image.Rect(0, 0, 256, 240),
	}

	label := fmt.Sprintf("%.0f FPS", g.currentFPS)
	bounds, _ := font.BoundString(basicfont.Face7x13, label)
	width := (bounds.Max.X - bounds.Min.X).Ceil() + 4
	height := 13

	draw.Draw(img, image.Rect(2, 2, 2+width, 2+height), image.NewUniform(color.RGBA{0, 0, 0, 200}), image.Point{}, draw.Over)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0, 255, 0, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(4), Y: fixed.I(12)},
	}
	drawer.DrawString(label)
}

// saveRecording writes the accumulated input trace to recordPath.
func (g *NESGUI) saveRecording() error {
	file, err := os.Create(g.recordPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return g.recorder.Save(file)
}

// saveScreenshot saves the current screen to a file
func (g *NESGUI) saveScreenshot() {
	filename := fmt.Sprintf("screenshot_%03d.rgba", g.screenshotNum)
	g.screenshotNum++
	g.saveScreenshotWithName(filename)
}

// saveFramebufferAsRaw saves framebuffer data as raw RGBA file
func (g *NESGUI) saveFramebufferAsRaw(filename string, data []uint8) {
	file, err := os.Create(filename)
	if err != nil {
		logger.LogError("Failed to create file %s: %v\n", filename, err)
		return
	}
	defer file.Close()

	_, err = file.Write(data)
	if err != nil {
		logger.LogError("Failed to write to file %s: %v\n", filename, err)
		return
	}

	logger.LogInfo("Raw framebuffer saved: %s (%d bytes)\n", filename, len(data))
}

// saveScreenshotWithName saves the current screen with a specific filename
func (g *NESGUI) saveScreenshotWithName(filename string) {
	// Read pixels from renderer
	w, h, _ := g.renderer.GetOutputSize()
	pixels := make([]byte, w*h*4)
	err := g.renderer.ReadPixels(nil, sdl.PIXELFORMAT_RGBA8888, unsafe.Pointer(&pixels[0]), int(w*4))
	if err != nil {
		logger.LogError("Failed to read pixels: %v\n", err)
		return
	}

	// Save as raw RGBA file
	g.saveFramebufferAsRaw(filename, pixels)
}

// initAudio initializes SDL audio device and callback
func (g *NESGUI) initAudio() error {
	// List available audio drivers for debugging
	numDrivers := sdl.GetNumAudioDrivers()
	logger.LogInfo("Available audio drivers (%d):", numDrivers)
	for i := 0; i < numDrivers; i++ {
		driverName := sdl.GetAudioDriver(i)
		logger.LogInfo("  %d: %s", i, driverName)
	}

	currentDriver := sdl.GetCurrentAudioDriver()
	logger.LogInfo("Current audio driver: %s", currentDriver)

	// Define audio specification with callback
	want := &sdl.AudioSpec{
		Freq:     AudioSampleRate,
		Format:   AudioFormat,
		Channels: AudioChannels,
		Samples:  AudioBufferSize,
	}

	logger.LogInfo("Requesting audio format: %dHz, %d channels, format 0x%x, buffer %d",
		want.Freq, want.Channels, want.Format, want.Samples)

	// Open audio device
	var have sdl.AudioSpec
	device, err := sdl.OpenAudioDevice("", false, want, &have, sdl.AUDIO_ALLOW_ANY_CHANGE)
	if err != nil {
		// Try with 16-bit format for better Windows compatibility
		logger.LogInfo("Retrying with 16-bit audio format...")
		want.Format = sdl.AUDIO_S16LSB
		device, err = sdl.OpenAudioDevice("", false, want, &have, sdl.AUDIO_ALLOW_ANY_CHANGE)
		if err != nil {
			return fmt.Errorf("failed to open audio device: %v", err)
		}
	}

	g.audioDevice = device
	g.audioSpec = &have

	logger.LogInfo("Audio initialized: %dHz, %d channels, format 0x%x, buffer size %d",
		have.Freq, have.Channels, have.Format, have.Samples)
	
	// IMPORTANT: Check if actual sample rate differs from requested
	if have.Freq != AudioSampleRate {
		logger.LogInfo("WARNING: Requested %d Hz but got %d Hz - audio pitch will be wrong!", 
			AudioSampleRate, have.Freq)
	}

	// Start audio playback
	sdl.PauseAudioDevice(device, false)

	return nil
}

// initAudioFallback stands up an oto-backed sink, used when the platform
// has no usable SDL audio driver (headless CI containers, some Linux
// desktops without pulse/alsa configured).
func (g *NESGUI) initAudioFallback() error {
	sink, err := NewOtoAudioSink()
	if err != nil {
		return err
	}
	g.otoSink = sink
	logger.LogInfo("oto audio initialized: %dHz, %d channel(s)", AudioSampleRate, AudioChannels)
	return nil
}

// OtoAudioSink drains APU float samples through oto without any SDL
// window, for callers like cmd/headless_debug that want to exercise
// audio output with no display attached.
type OtoAudioSink struct {
	ctx    *oto.Context
	player *oto.Player
	buf    *otoRingBuffer
}

// NewOtoAudioSink opens an oto playback context at the emulator's fixed
// mono 44.1kHz float32 format and starts it draining.
func NewOtoAudioSink() (*OtoAudioSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   AudioSampleRate,
		ChannelCount: AudioChannels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %v", err)
	}
	<-ready

	buf := newOtoRingBuffer(AudioSampleRate * 4 * 2)
	player := ctx.NewPlayer(buf)
	player.Play()

	return &OtoAudioSink{ctx: ctx, player: player, buf: buf}, nil
}

// Write appends APU output samples to the sink's playback buffer.
func (s *OtoAudioSink) Write(samples []float32) {
	s.buf.Write(float32SamplesToLE(samples))
}

// Close stops playback and releases the oto player.
func (s *OtoAudioSink) Close() {
	s.player.Close()
}

// otoRingBuffer is a small byte queue implementing io.Reader so oto's
// player can pull PCM data pushed in by queueAudio. Reads when the
// buffer is empty return silence rather than blocking, since oto expects
// Read to make progress even when the APU hasn't produced samples yet.
type otoRingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	maxSize int
}

func newOtoRingBuffer(maxSize int) *otoRingBuffer {
	return &otoRingBuffer{maxSize: maxSize}
}

func (r *otoRingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	if len(r.buf) > r.maxSize {
		r.buf = r.buf[len(r.buf)-r.maxSize:]
	}
}

func (r *otoRingBuffer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// float32SamplesToLE converts APU float samples (boosted and clamped) to
// little-endian 32-bit float PCM bytes, the wire format both the SDL and
// oto audio paths use.
func float32SamplesToLE(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, sample := range samples {
		sample *= 0.5
		bits := *(*uint32)(unsafe.Pointer(&sample))
		data[i*4+0] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// queueAudio queues APU audio samples to whichever backend initAudio
// managed to stand up - SDL's queue when it opened a device, oto's ring
// buffer otherwise.
func (g *NESGUI) queueAudio() {
	apuOutput := g.nes.APU.Output
	if len(apuOutput) == 0 {
		return
	}

	switch {
	case g.audioDevice != 0:
		queuedBytes := sdl.GetQueuedAudioSize(g.audioDevice)
		maxBytes := uint32(AudioBufferSize * 4 * 2) // 2 buffers worth
		if queuedBytes < maxBytes {
			var audioData []byte
			if g.audioSpec.Format == sdl.AUDIO_F32LSB {
				audioData = float32SamplesToLE(apuOutput)
			} else if g.audioSpec.Format == sdl.AUDIO_S16LSB {
				audioData = make([]byte, len(apuOutput)*2)
				for i, sample := range apuOutput {
					sample *= 0.5
					if sample > 1.0 {
						sample = 1.0
					} else if sample < -1.0 {
						sample = -1.0
					}
					intSample := int16(sample * 32767)
					audioData[i*2+0] = byte(intSample)
					audioData[i*2+1] = byte(intSample >> 8)
				}
			}
			if len(audioData) > 0 {
				sdl.QueueAudio(g.audioDevice, audioData)
			}
		}
	case g.otoSink != nil:
		g.otoSink.Write(apuOutput)
	}

	// Always clear APU buffer
	g.nes.APU.Output = g.nes.APU.Output[:0]
}

// updateFPS calculates the current FPS
func (g *NESGUI) updateFPS() {
	g.fpsCounter++

	// Update FPS every 0.5 seconds for more responsive display
	elapsed := time.Since(g.fpsTimer)
	if elapsed >= 500*time.Millisecond {
		g.currentFPS = float64(g.fpsCounter) / elapsed.Seconds()
		
		// Debug: Log if FPS is significantly off target
		if g.fpsCounter%30 == 0 {
			deviation := (g.currentFPS - TargetFPS) / TargetFPS * 100
			if deviation > 5 || deviation < -5 {
				logger.LogInfo("FPS: %.2f (target: %.2f, deviation: %.1f%%)", 
					g.currentFPS, TargetFPS, deviation)
			}
		}
		
		g.fpsCounter = 0
		g.fpsTimer = time.Now()
	}
}

// updateWindowTitle updates the window title with FPS information
func (g *NESGUI) updateWindowTitle() {
	title := fmt.Sprintf("%s - FPS: %.1f", WindowTitle, g.currentFPS)
	g.window.SetTitle(title)
}
