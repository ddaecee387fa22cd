package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/internal/capture"
	"github.com/buzzylabs/buzzy/internal/protocol"
)

// buzzy-client is a reference client for the chat websocket. It can send
// a typed message, ship a pre-recorded utterance, or run the capture
// state machine over a raw PCM file to simulate the full listening flow.
func main() {
	var (
		server     = flag.String("server", "localhost:8080", "server host:port")
		text       = flag.String("text", "", "send a text chat with this message")
		audioFile  = flag.String("audio", "", "send the raw 16-bit PCM file as an audio chat")
		streamFile = flag.String("stream", "", "run utterance capture over the raw PCM file, then send the result")
		sampleRate = flag.Int("rate", 16000, "PCM sample rate in Hz")
		wantTTS    = flag.Bool("tts", true, "request synthesized audio responses")
	)
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	ids := protocol.NewCounter()
	send := func(t protocol.MsgType, data protocol.Payload, audio []byte) uint32 {
		id := ids.Next()
		frame, err := protocol.Encode(protocol.Message{Type: t, ID: id, Data: data, Binary: audio})
		if err != nil {
			log.Fatalf("encode %s: %v", t, err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Fatalf("write %s: %v", t, err)
		}
		return id
	}

	send(protocol.MsgClientHello, &protocol.ClientHello{SampleRate: *sampleRate}, nil)

	switch {
	case *text != "":
		send(protocol.MsgRequestTextChat, &protocol.TextChatRequest{Text: *text, TTS: *wantTTS}, nil)

	case *audioFile != "":
		audio, err := os.ReadFile(*audioFile)
		if err != nil {
			log.Fatalf("read %s: %v", *audioFile, err)
		}
		send(protocol.MsgRequestAudioChat, &protocol.AudioChatRequest{SampleRate: *sampleRate, TTS: *wantTTS}, audio)

	case *streamFile != "":
		utterance, err := captureFromFile(*streamFile, *sampleRate)
		if err != nil {
			log.Fatalf("capture from %s: %v", *streamFile, err)
		}
		log.Printf("captured utterance: %d bytes", len(utterance))
		send(protocol.MsgRequestAudioChat, &protocol.AudioChatRequest{SampleRate: *sampleRate, TTS: *wantTTS}, utterance)

	default:
		flag.Usage()
		os.Exit(2)
	}

	readResponses(conn)
}

// readResponses prints response frames until the turn completes.
func readResponses(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	audioBytes := 0

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			log.Fatalf("decode: %v", err)
		}

		switch data := msg.Data.(type) {
		case *protocol.NewChatResponse:
			log.Printf("chat %d started (response to %d)", data.ChatID, data.ResponseTo)
		case *protocol.ChatResponseText:
			fmt.Print(data.Text)
		case *protocol.ChatResponseAudio:
			audioBytes += len(msg.Binary)
		case *protocol.ChatResponseDone:
			fmt.Println()
			log.Printf("turn complete, %d bytes of audio received", audioBytes)
			return
		case *protocol.ErrorData:
			log.Printf("server error: %s", data.Error)
		default:
			log.Printf("unexpected frame %s", msg.Type)
		}
	}
}

// captureFromFile replays a raw PCM file through the utterance capture
// machine. Frame energy stands in for a real voice activity model and
// the wake word fires as soon as both detectors are ready.
func captureFromFile(path string, sampleRate int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}

	cfg := capture.Config{SampleRate: sampleRate}
	var utterance []byte
	machine := capture.New(cfg, nopReleaser{}, nopReleaser{}, func(u []int16) {
		utterance = make([]byte, 2*len(u))
		for i, s := range u {
			binary.LittleEndian.PutUint16(utterance[2*i:], uint16(s))
		}
	}, zap.NewNop())
	defer machine.Close()

	machine.Feed(capture.DetectorReady{Detector: capture.DetectorWakeWord})
	machine.Feed(capture.DetectorReady{Detector: capture.DetectorVoiceActivity})
	machine.Feed(capture.WakeWord{})

	frameSize := 512
	frameDur := time.Duration(frameSize) * time.Second / time.Duration(sampleRate)
	now := time.Now()

	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			break
		}
		frame := samples[start:end]
		now = now.Add(frameDur)

		machine.Feed(capture.AudioFrame{Samples: frame})
		machine.Feed(capture.VoiceProbability{Value: frameEnergy(frame), At: now})
		if utterance != nil {
			return utterance, nil
		}
	}

	// File ended before the silence exit fired; report what we have by
	// forcing two seconds of silence.
	for i := 0; i < 70 && utterance == nil; i++ {
		now = now.Add(frameDur)
		machine.Feed(capture.VoiceProbability{Value: 0, At: now})
	}
	if utterance == nil {
		return nil, fmt.Errorf("no utterance detected")
	}
	return utterance, nil
}

// frameEnergy maps RMS amplitude onto a crude speech probability.
func frameEnergy(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	p := rms / 2000
	if p > 1 {
		p = 1
	}
	return p
}

type nopReleaser struct{}

func (nopReleaser) Release() error { return nil }
