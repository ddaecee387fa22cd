package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Version is the protocol revision written into every encoded frame.
// Decoders reject frames from newer revisions.
const Version = 0

// Frame layout, little-endian:
//
//	offset 0     protocol version
//	offset 1     reserved, must be written as zero, ignored on read
//	offset 2-3   message type
//	offset 4-7   message id
//	offset 8-11  length of the JSON text segment
//	offset 12    UTF-8 JSON text segment
//	then         raw binary segment, only for binary-capable variants
const headerLen = 12

// Encode serializes a message into one wire frame. Attaching binary data
// to a variant that does not carry one fails with InvalidPayloadError.
func Encode(msg Message) ([]byte, error) {
	if msg.Binary != nil && !msg.Type.HasBinary() {
		return nil, &InvalidPayloadError{Type: msg.Type}
	}
	if msg.Data == nil {
		return nil, &MalformedFrameError{Reason: "nil payload"}
	}
	if got := msg.Data.msgType(); got != msg.Type {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("payload %s does not match message type %s", got, msg.Type)}
	}

	text, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	frame := make([]byte, headerLen+len(text)+len(msg.Binary))
	frame[0] = Version
	frame[1] = 0
	binary.LittleEndian.PutUint16(frame[2:4], uint16(msg.Type))
	binary.LittleEndian.PutUint32(frame[4:8], msg.ID)
	binary.LittleEndian.PutUint32(frame[8:12], uint32(len(text)))
	copy(frame[headerLen:], text)
	copy(frame[headerLen+len(text):], msg.Binary)

	return frame, nil
}

// Decode parses one wire frame. It fails with ProtocolVersionError for
// frames from a newer protocol revision and MalformedFrameError for
// frames whose structure or JSON segment cannot be parsed.
func Decode(frame []byte) (Message, error) {
	if len(frame) < headerLen {
		return Message{}, &MalformedFrameError{Reason: fmt.Sprintf("frame too short: %d bytes", len(frame))}
	}

	if v := frame[0]; v > Version {
		return Message{}, &ProtocolVersionError{Version: v}
	}
	// frame[1] is reserved for future flags and ignored.

	msgType := MsgType(binary.LittleEndian.Uint16(frame[2:4]))
	msgID := binary.LittleEndian.Uint32(frame[4:8])
	textLen := binary.LittleEndian.Uint32(frame[8:12])

	if int(textLen) > len(frame)-headerLen {
		return Message{}, &MalformedFrameError{Reason: fmt.Sprintf("declared text length %d exceeds frame", textLen)}
	}

	data, err := newPayload(msgType)
	if err != nil {
		return Message{}, err
	}
	text := frame[headerLen : headerLen+int(textLen)]
	if err := json.Unmarshal(text, data); err != nil {
		return Message{}, &MalformedFrameError{Reason: fmt.Sprintf("invalid JSON segment: %v", err)}
	}

	msg := Message{
		Type: msgType,
		ID:   msgID,
		Data: data,
	}
	if msgType.HasBinary() {
		if rest := frame[headerLen+int(textLen):]; len(rest) > 0 {
			msg.Binary = make([]byte, len(rest))
			copy(msg.Binary, rest)
		}
	}

	return msg, nil
}

func newPayload(t MsgType) (Payload, error) {
	switch t {
	case MsgClientHello:
		return &ClientHello{}, nil
	case MsgError:
		return &ErrorData{}, nil
	case MsgRequestAudioChat:
		return &AudioChatRequest{}, nil
	case MsgRequestTextChat:
		return &TextChatRequest{}, nil
	case MsgNewChatResponse:
		return &NewChatResponse{}, nil
	case MsgChatResponseAudio:
		return &ChatResponseAudio{}, nil
	case MsgChatResponseText:
		return &ChatResponseText{}, nil
	case MsgChatResponseDone:
		return &ChatResponseDone{}, nil
	default:
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("unknown message type %d", t)}
	}
}
