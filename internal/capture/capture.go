// Package capture turns a continuous stream of microphone frames into
// discrete utterances. A wake-word detection opens a recording window and
// sustained silence closes it; the buffered samples are then handed to
// the caller as one contiguous utterance, ready to be sent as an audio
// chat request.
//
// The machine is a single-threaded consumer of one ordered event stream.
// The wake-word and voice-activity models run elsewhere (they are opaque
// workers); their detections and probability samples arrive here as
// events interleaved with the raw audio frames, so no locking is needed
// inside the machine itself.
package capture

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle phase of the capture machine.
type State int

const (
	// StateInitializing waits for both detector workers to come up.
	StateInitializing State = iota
	// StateWaiting listens for a wake word while keeping a short
	// pre-roll of recent audio.
	StateWaiting
	// StateActive records an utterance until sustained silence.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Detector identifies one of the two worker models feeding the machine.
type Detector int

const (
	DetectorWakeWord Detector = iota
	DetectorVoiceActivity
)

// Event is one item of the ordered input stream.
type Event interface {
	isEvent()
}

// DetectorReady signals that a worker model finished loading.
type DetectorReady struct {
	Detector Detector
}

// WakeWord signals a wake-word detection.
type WakeWord struct{}

// VoiceProbability carries one smoothed voice-activity sample. At is the
// capture timestamp of the sample, not the arrival time; silence timing
// is computed from these timestamps so replayed streams behave
// identically to live ones.
type VoiceProbability struct {
	Value float64
	At    time.Time
}

// AudioFrame carries one frame of raw PCM16 mono samples.
type AudioFrame struct {
	Samples []int16
}

func (DetectorReady) isEvent()    {}
func (WakeWord) isEvent()         {}
func (VoiceProbability) isEvent() {}
func (AudioFrame) isEvent()       {}

// Releaser frees a detector worker's resources. Both workers are released
// exactly once when the machine closes, whatever state it is in.
type Releaser interface {
	Release() error
}

const (
	defaultSampleRate       = 16000
	defaultFrameSize        = 512
	defaultPreRoll          = 100 * time.Millisecond
	defaultSilenceThreshold = 0.7
	defaultSilenceHold      = 1500 * time.Millisecond
)

// Config tunes the capture machine. Zero values pick the defaults.
type Config struct {
	// SampleRate of incoming frames, in Hz.
	SampleRate int
	// FrameSize is the number of samples per frame.
	FrameSize int
	// PreRoll is how much idle audio to keep so speech starting right
	// after the wake word is not truncated.
	PreRoll time.Duration
	// SilenceThreshold is the voice probability below which a sample
	// counts as silence.
	SilenceThreshold float64
	// SilenceHold is how long silence must persist to end an utterance.
	SilenceHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.FrameSize == 0 {
		c.FrameSize = defaultFrameSize
	}
	if c.PreRoll == 0 {
		c.PreRoll = defaultPreRoll
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = defaultSilenceThreshold
	}
	if c.SilenceHold == 0 {
		c.SilenceHold = defaultSilenceHold
	}
	return c
}

// preRollFrames is the bound of the idle ring buffer.
func (c Config) preRollFrames() int {
	framesPerSecond := float64(c.SampleRate) / float64(c.FrameSize)
	n := int(c.PreRoll.Seconds()*framesPerSecond + 0.999)
	if n < 1 {
		n = 1
	}
	return n
}

// UtteranceFunc receives one completed utterance: every frame recorded
// since activation, pre-roll included, concatenated in arrival order.
type UtteranceFunc func(samples []int16)

// Machine is the utterance capture state machine. It is not safe for
// concurrent use: feed it from a single goroutine, typically via Run.
type Machine struct {
	cfg    Config
	state  State
	logger *zap.Logger

	wakeWord Releaser
	vad      Releaser
	onUtter  UtteranceFunc

	wwReady  bool
	vadReady bool

	// preRoll holds the most recent idle frames, bounded by the pre-roll
	// duration; recording holds frames of the in-flight utterance.
	preRoll   [][]int16
	maxFrames int
	recording [][]int16

	// silenceStart is the timestamp of the first sub-threshold sample of
	// the current silence run; zero when voice is present.
	silenceStart time.Time

	closed bool
}

// New creates a capture machine. The wake-word and voice-activity
// releasers may be nil when the caller manages those workers itself.
func New(cfg Config, wakeWord, vad Releaser, onUtterance UtteranceFunc, logger *zap.Logger) *Machine {
	cfg = cfg.withDefaults()
	return &Machine{
		cfg:       cfg,
		state:     StateInitializing,
		logger:    logger,
		wakeWord:  wakeWord,
		vad:       vad,
		onUtter:   onUtterance,
		maxFrames: cfg.preRollFrames(),
	}
}

// State returns the current lifecycle phase.
func (m *Machine) State() State {
	return m.state
}

// Feed consumes one event. Events that make no sense in the current
// state are ignored.
func (m *Machine) Feed(ev Event) {
	if m.closed {
		return
	}

	switch e := ev.(type) {
	case DetectorReady:
		m.handleReady(e)
	case WakeWord:
		m.handleWakeWord()
	case VoiceProbability:
		m.handleProbability(e)
	case AudioFrame:
		m.handleFrame(e)
	}
}

func (m *Machine) handleReady(e DetectorReady) {
	if m.state != StateInitializing {
		return
	}
	switch e.Detector {
	case DetectorWakeWord:
		m.wwReady = true
	case DetectorVoiceActivity:
		m.vadReady = true
	}
	if m.wwReady && m.vadReady {
		m.state = StateWaiting
		m.logger.Info("Capture ready, listening for wake word")
	}
}

func (m *Machine) handleWakeWord() {
	if m.state != StateWaiting {
		return
	}

	// Seed the recording with the pre-roll so speech that began just
	// before activation is kept.
	m.recording = m.preRoll
	m.preRoll = nil
	m.silenceStart = time.Time{}
	m.state = StateActive
	m.logger.Info("Wake word detected, recording",
		zap.Int("preRollFrames", len(m.recording)))
}

func (m *Machine) handleProbability(e VoiceProbability) {
	if m.state != StateActive {
		return
	}

	if e.Value >= m.cfg.SilenceThreshold {
		m.silenceStart = time.Time{}
		return
	}

	if m.silenceStart.IsZero() {
		m.silenceStart = e.At
		return
	}

	if e.At.Sub(m.silenceStart) >= m.cfg.SilenceHold {
		m.finishUtterance()
	}
}

func (m *Machine) handleFrame(e AudioFrame) {
	switch m.state {
	case StateActive:
		m.recording = append(m.recording, e.Samples)
	case StateWaiting:
		m.preRoll = append(m.preRoll, e.Samples)
		for len(m.preRoll) > m.maxFrames {
			m.preRoll = m.preRoll[1:]
		}
	}
}

func (m *Machine) finishUtterance() {
	frames := m.recording
	m.recording = nil
	m.silenceStart = time.Time{}
	m.state = StateWaiting

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	samples := make([]int16, 0, total)
	for _, f := range frames {
		samples = append(samples, f...)
	}

	m.logger.Info("Utterance complete",
		zap.Int("frames", len(frames)),
		zap.Int("samples", total))

	if m.onUtter != nil && total > 0 {
		m.onUtter(samples)
	}
}

// Run consumes events until the channel closes or ctx is done, then
// closes the machine.
func (m *Machine) Run(done <-chan struct{}, events <-chan Event) error {
	defer func() {
		if err := m.Close(); err != nil {
			m.logger.Error("Capture close failed", zap.Error(err))
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Feed(ev)
		}
	}
}

// Close releases both detector workers and drops any buffered audio. It
// is idempotent and safe in every state; an utterance in progress is
// discarded, not delivered.
func (m *Machine) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.preRoll = nil
	m.recording = nil

	var errs []error
	if m.wakeWord != nil {
		if err := m.wakeWord.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.vad != nil {
		if err := m.vad.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
