package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// RelayFrame carries one broadcast between server instances. An empty RoundID
// means broadcast to every connection.
type RelayFrame struct {
	Origin  string
	RoundID string
	Message Outbound
}

// EncodeRelay serialises a frame as a protobuf Struct.
func EncodeRelay(f RelayFrame) ([]byte, error) {
	payload, err := toMap(f.Message.Payload)
	if err != nil {
		return nil, err
	}

	s, err := structpb.NewStruct(map[string]any{
		"origin":  f.Origin,
		"roundId": f.RoundID,
		"type":    string(f.Message.Type),
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build relay struct: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeRelay is the inverse of EncodeRelay. The payload comes back as a
// generic map, which marshals to the same JSON.
func DecodeRelay(data []byte) (RelayFrame, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return RelayFrame{}, fmt.Errorf("unmarshal relay frame: %w", err)
	}

	fields := s.GetFields()
	frame := RelayFrame{
		Origin:  fields["origin"].GetStringValue(),
		RoundID: fields["roundId"].GetStringValue(),
		Message: Outbound{Type: OutboundType(fields["type"].GetStringValue())},
	}
	if frame.Message.Type == "" {
		return RelayFrame{}, fmt.Errorf("relay frame without type")
	}
	if p := fields["payload"].GetStructValue(); p != nil {
		frame.Message.Payload = p.AsMap()
	}
	return frame, nil
}

func toMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal relay payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("relay payload must be an object: %w", err)
	}
	return m, nil
}
