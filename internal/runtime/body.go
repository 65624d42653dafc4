package runtime

import (
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	"github.com/drblury/lightmq/internal/runtime/jsoncodec"
)

// Content types set by Send and honoured on delivery.
const (
	ContentTypeText  = "text/plain"
	ContentTypeBytes = "application/octet-stream"
	ContentTypeJSON  = "application/json"
)

// encodeBody maps a payload to its wire body: strings travel as text, byte
// slices as octets, protobuf messages as protojson and anything else as JSON.
func encodeBody(payload any) ([]byte, string, error) {
	switch v := payload.(type) {
	case nil:
		return nil, "", errspkg.NewValidationError("payload", errspkg.ErrPayloadRequired)
	case string:
		return []byte(v), ContentTypeText, nil
	case []byte:
		return v, ContentTypeBytes, nil
	}

	rv := reflect.ValueOf(payload)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, "", errspkg.NewValidationError("payload", errspkg.ErrUnsupportedPayload)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, "", errspkg.NewValidationError("payload", errspkg.ErrPayloadRequired)
		}
	}

	if msg, ok := payload.(proto.Message); ok {
		body, err := protojson.Marshal(msg)
		if err != nil {
			return nil, "", errspkg.NewValidationError("payload", fmt.Errorf("marshal proto payload: %w", err))
		}
		return body, ContentTypeJSON, nil
	}

	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, "", errspkg.NewValidationError("payload", fmt.Errorf("marshal json payload: %w", err))
	}
	return body, ContentTypeJSON, nil
}

// decodeBody turns a delivered body back into the value handed to message and
// malformed listeners alike. JSON that does not parse is delivered as its raw
// text.
func decodeBody(contentType string, body []byte) any {
	switch mediaType(contentType) {
	case ContentTypeText:
		return string(body)
	case ContentTypeJSON:
		v, err := jsoncodec.DecodeValue(body)
		if err != nil {
			return string(body)
		}
		return v
	default:
		return body
	}
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
