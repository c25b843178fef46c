// Package shiftlabv1 описывает gRPC API сервиса заказов ShiftLab:
// сообщения, дескриптор сервиса и JSON-кодек, в котором они передаются.
package shiftlabv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName — content-subtype, под которым клиент и сервер обмениваются сообщениями.
const CodecName = "json"

// Codec сериализует сообщения API в JSON. Proto-сообщения (health, reflection)
// кодируются через protojson.
type Codec struct{}

// Marshal кодирует сообщение.
func (Codec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(v)
}

// Unmarshal декодирует сообщение.
func (Codec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, msg)
	}
	return json.Unmarshal(data, v)
}

// Name возвращает content-subtype кодека.
func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
