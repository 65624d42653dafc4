package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	"github.com/drblury/lightmq/internal/runtime/jsoncodec"
)

type pet struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name        string
		payload     any
		body        []byte
		contentType string
	}{
		{name: "string", payload: "hello", body: []byte("hello"), contentType: ContentTypeText},
		{name: "empty string", payload: "", body: []byte(""), contentType: ContentTypeText},
		{name: "bytes", payload: []byte{0, 1, 2}, body: []byte{0, 1, 2}, contentType: ContentTypeBytes},
		{name: "struct", payload: pet{Name: "tom", Count: 1}, body: []byte(`{"name":"tom","count":1}`), contentType: ContentTypeJSON},
		{name: "map", payload: map[string]int{"a": 1}, body: []byte(`{"a":1}`), contentType: ContentTypeJSON},
		{name: "number", payload: 42, body: []byte(`42`), contentType: ContentTypeJSON},
		{name: "bool", payload: true, body: []byte(`true`), contentType: ContentTypeJSON},
		{name: "proto", payload: wrapperspb.String("boots"), body: []byte(`"boots"`), contentType: ContentTypeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType, err := encodeBody(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, contentType)
			assert.Equal(t, string(tt.body), string(body))
		})
	}
}

func TestEncodeBodyMatchesCodec(t *testing.T) {
	payload := pet{Name: "tom", Count: 3, Tags: []string{"grey"}}
	body, _, err := encodeBody(payload)
	require.NoError(t, err)

	want, err := jsoncodec.Marshal(payload)
	require.NoError(t, err)
	assert.Equal(t, want, body)
}

func TestEncodeBodyRejects(t *testing.T) {
	var nilMap map[string]int
	tests := []struct {
		name    string
		payload any
		want    error
	}{
		{name: "nil", payload: nil, want: errspkg.ErrPayloadRequired},
		{name: "nil pointer", payload: (*pet)(nil), want: errspkg.ErrPayloadRequired},
		{name: "func", payload: func() {}, want: errspkg.ErrUnsupportedPayload},
		{name: "chan", payload: make(chan struct{}), want: errspkg.ErrUnsupportedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := encodeBody(tt.payload)
			assert.ErrorIs(t, err, tt.want)
			var verr errspkg.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "payload", verr.Field)
		})
	}

	body, contentType, err := encodeBody(nilMap)
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))
	assert.Equal(t, ContentTypeJSON, contentType)
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        any
	}{
		{name: "text", contentType: ContentTypeText, body: []byte("hi"), want: "hi"},
		{name: "text with charset", contentType: "Text/Plain; charset=utf-8", body: []byte("hi"), want: "hi"},
		{name: "json object", contentType: ContentTypeJSON, body: []byte(`{"a":[1,"b",null]}`), want: map[string]any{"a": []any{float64(1), "b", nil}}},
		{name: "json string", contentType: ContentTypeJSON, body: []byte(`"x"`), want: "x"},
		{name: "invalid json", contentType: ContentTypeJSON, body: []byte(`{"a":`), want: `{"a":`},
		{name: "bytes", contentType: ContentTypeBytes, body: []byte{9}, want: []byte{9}},
		{name: "unknown type", contentType: "image/png", body: []byte{1}, want: []byte{1}},
		{name: "missing type", body: []byte{1}, want: []byte{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeBody(tt.contentType, tt.body))
		})
	}
}

func TestBodyJSONRoundTrip(t *testing.T) {
	body, contentType, err := encodeBody(pet{Name: "tom", Count: 2, Tags: []string{"a"}})
	require.NoError(t, err)

	got := decodeBody(contentType, body)
	assert.Equal(t, map[string]any{"name": "tom", "count": float64(2), "tags": []any{"a"}}, got)
}
