// Package protocol implements the binary frame format carried over the
// chat websocket. Every frame multiplexes a typed JSON payload with an
// optional raw audio segment; see Encode for the exact layout.
package protocol

// MsgType identifies a protocol message variant. The numeric values are
// part of the wire format and must never be reordered or reused.
type MsgType uint16

const (
	MsgClientHello       MsgType = 1
	MsgError             MsgType = 2
	MsgRequestAudioChat  MsgType = 3
	MsgRequestTextChat   MsgType = 4
	MsgNewChatResponse   MsgType = 5
	MsgChatResponseAudio MsgType = 6
	MsgChatResponseText  MsgType = 7
	MsgChatResponseDone  MsgType = 8
)

// String returns the wire name of the message type.
func (t MsgType) String() string {
	switch t {
	case MsgClientHello:
		return "client_hello"
	case MsgError:
		return "error"
	case MsgRequestAudioChat:
		return "request_audio_chat"
	case MsgRequestTextChat:
		return "request_text_chat"
	case MsgNewChatResponse:
		return "new_chat_response"
	case MsgChatResponseAudio:
		return "chat_response_audio"
	case MsgChatResponseText:
		return "chat_response_text"
	case MsgChatResponseDone:
		return "chat_response_done"
	default:
		return "unknown"
	}
}

// HasBinary reports whether this variant carries a raw binary segment
// after the JSON text segment.
func (t MsgType) HasBinary() bool {
	return t == MsgRequestAudioChat || t == MsgChatResponseAudio
}

// Role identifies the speaker of a chat response text frame.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Payload is implemented by the per-variant JSON payload structs.
type Payload interface {
	msgType() MsgType
}

// ClientHello declares the client's audio capture sample rate. Sent once
// after connecting; no response is required.
type ClientHello struct {
	SampleRate int `json:"sample_rate"`
}

// ErrorData reports a per-message failure. ResponseTo is set when the
// offending message's id is known.
type ErrorData struct {
	Error      string  `json:"error"`
	ResponseTo *uint32 `json:"response_to,omitempty"`
}

// AudioChatRequest starts a chat turn from a recorded utterance. The
// frame's binary segment holds raw PCM16 mono samples.
type AudioChatRequest struct {
	SampleRate int  `json:"sample_rate"`
	TTS        bool `json:"tts"`
}

// TextChatRequest starts a chat turn from typed text.
type TextChatRequest struct {
	Text string `json:"text"`
	TTS  bool   `json:"tts"`
}

// NewChatResponse acknowledges a chat request and assigns its chat id.
type NewChatResponse struct {
	ChatID     uint32 `json:"chat_id"`
	ResponseTo uint32 `json:"response_to"`
}

// ChatResponseText delivers one text delta of a chat turn.
type ChatResponseText struct {
	ChatID uint32 `json:"chat_id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
}

// ChatResponseAudio delivers one rendered audio chunk of a chat turn.
// The frame's binary segment holds the encoded audio bytes.
type ChatResponseAudio struct {
	ChatID uint32 `json:"chat_id"`
}

// ChatResponseDone closes a chat turn. Exactly one is sent per turn.
type ChatResponseDone struct {
	ChatID uint32 `json:"chat_id"`
}

func (*ClientHello) msgType() MsgType       { return MsgClientHello }
func (*ErrorData) msgType() MsgType         { return MsgError }
func (*AudioChatRequest) msgType() MsgType  { return MsgRequestAudioChat }
func (*TextChatRequest) msgType() MsgType   { return MsgRequestTextChat }
func (*NewChatResponse) msgType() MsgType   { return MsgNewChatResponse }
func (*ChatResponseText) msgType() MsgType  { return MsgChatResponseText }
func (*ChatResponseAudio) msgType() MsgType { return MsgChatResponseAudio }
func (*ChatResponseDone) msgType() MsgType  { return MsgChatResponseDone }

// Message is one decoded protocol frame.
type Message struct {
	Type   MsgType
	ID     uint32
	Data   Payload
	Binary []byte
}
