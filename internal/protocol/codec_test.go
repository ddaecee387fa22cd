package protocol

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	respTo := uint32(9)

	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "client_hello",
			msg: Message{
				Type: MsgClientHello,
				ID:   1,
				Data: &ClientHello{SampleRate: 16000},
			},
		},
		{
			name: "error with response_to",
			msg: Message{
				Type: MsgError,
				ID:   2,
				Data: &ErrorData{Error: "transcription failed", ResponseTo: &respTo},
			},
		},
		{
			name: "error without response_to",
			msg: Message{
				Type: MsgError,
				ID:   3,
				Data: &ErrorData{Error: "unexpected message"},
			},
		},
		{
			name: "request_audio_chat with binary",
			msg: Message{
				Type:   MsgRequestAudioChat,
				ID:     4,
				Data:   &AudioChatRequest{SampleRate: 16000, TTS: true},
				Binary: []byte{0x01, 0x02, 0xFF, 0x00, 0x7F},
			},
		},
		{
			name: "request_text_chat",
			msg: Message{
				Type: MsgRequestTextChat,
				ID:   5,
				Data: &TextChatRequest{Text: "hi there", TTS: false},
			},
		},
		{
			name: "new_chat_response",
			msg: Message{
				Type: MsgNewChatResponse,
				ID:   6,
				Data: &NewChatResponse{ChatID: 12, ResponseTo: 5},
			},
		},
		{
			name: "chat_response_text",
			msg: Message{
				Type: MsgChatResponseText,
				ID:   7,
				Data: &ChatResponseText{ChatID: 12, Role: RoleAssistant, Text: "Hello!"},
			},
		},
		{
			name: "chat_response_audio with binary",
			msg: Message{
				Type:   MsgChatResponseAudio,
				ID:     8,
				Data:   &ChatResponseAudio{ChatID: 12},
				Binary: []byte("pcm-bytes-here"),
			},
		},
		{
			name: "chat_response_done",
			msg: Message{
				Type: MsgChatResponseDone,
				ID:   9,
				Data: &ChatResponseDone{ChatID: 12},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("round trip mismatch:\nencoded: %+v\ndecoded: %+v", tt.msg, decoded)
			}
		})
	}
}

func TestEncodeBinaryOnNonBinaryVariant(t *testing.T) {
	msg := Message{
		Type:   MsgRequestTextChat,
		ID:     1,
		Data:   &TextChatRequest{Text: "hi"},
		Binary: []byte{1, 2, 3},
	}

	_, err := Encode(msg)
	var invalid *InvalidPayloadError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPayloadError, got %v", err)
	}
	if invalid.Type != MsgRequestTextChat {
		t.Errorf("expected type %s in error, got %s", MsgRequestTextChat, invalid.Type)
	}
}

func TestEncodePayloadTypeMismatch(t *testing.T) {
	msg := Message{
		Type: MsgClientHello,
		ID:   1,
		Data: &TextChatRequest{Text: "hi"},
	}

	_, err := Encode(msg)
	var malformed *MalformedFrameError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedFrameError, got %v", err)
	}
}

func TestDecodeVersionGate(t *testing.T) {
	// Build an otherwise valid frame, then bump the version byte.
	frame, err := Encode(Message{
		Type: MsgClientHello,
		ID:   1,
		Data: &ClientHello{SampleRate: 16000},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for _, v := range []uint8{Version + 1, 7, 255} {
		frame[0] = v
		_, err := Decode(frame)
		var versionErr *ProtocolVersionError
		if !errors.As(err, &versionErr) {
			t.Fatalf("version %d: expected ProtocolVersionError, got %v", v, err)
		}
		if versionErr.Version != v {
			t.Errorf("expected version %d in error, got %d", v, versionErr.Version)
		}
	}
}

func TestDecodeReservedByteIgnored(t *testing.T) {
	frame, err := Encode(Message{
		Type: MsgClientHello,
		ID:   1,
		Data: &ClientHello{SampleRate: 44100},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// A future revision may set flags here; current decoders must not care.
	frame[1] = 0xAB

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	hello, ok := decoded.Data.(*ClientHello)
	if !ok || hello.SampleRate != 44100 {
		t.Errorf("unexpected payload: %+v", decoded.Data)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	valid, err := Encode(Message{
		Type: MsgRequestTextChat,
		ID:   1,
		Data: &TextChatRequest{Text: "hi"},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	overLength := make([]byte, len(valid))
	copy(overLength, valid)
	binary.LittleEndian.PutUint32(overLength[8:12], uint32(len(valid)))

	badJSON := make([]byte, len(valid))
	copy(badJSON, valid)
	badJSON[12] = '{'
	badJSON[13] = '{'

	unknownType := make([]byte, len(valid))
	copy(unknownType, valid)
	binary.LittleEndian.PutUint16(unknownType[2:4], 999)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"truncated header", valid[:8]},
		{"empty frame", nil},
		{"text length exceeds frame", overLength},
		{"invalid JSON segment", badJSON},
		{"unknown message type", unknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			var malformed *MalformedFrameError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedFrameError, got %v", err)
			}
		})
	}
}

func TestCounterSequence(t *testing.T) {
	c := NewCounter()
	for want := uint32(0); want < 5; want++ {
		if got := c.Next(); got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
}

func TestCounterWrapsAtUint32(t *testing.T) {
	c := NewCounter()
	c.n.Store(^uint32(0)) // next Add overflows

	if got := c.Next(); got != ^uint32(0) {
		t.Fatalf("expected max uint32, got %d", got)
	}
	if got := c.Next(); got != 0 {
		t.Errorf("expected wrap to 0, got %d", got)
	}
}
