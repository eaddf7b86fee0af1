package grpcx

import (
	"encoding/json"

	"google.golang.org/grpc"
)

// CodecName is the content-subtype of RoomService calls (application/grpc+json).
const CodecName = "json"

// jsonCodec carries RoomService messages as JSON, so the service needs no
// generated stubs. Both server and client force it.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// ServerCodec must be passed to grpc.NewServer for RoomService to work.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}

func callCodec() grpc.CallOption {
	return grpc.ForceCodec(jsonCodec{})
}
