package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		want    Message
		wantErr *DecodeError
	}{
		{name: "init without payload", frame: `{"type":"connection_init"}`, want: Message{Type: TypeConnectionInit}},
		{name: "init with payload", frame: `{"type":"connection_init","payload":{"token":"t"}}`, want: Message{Type: TypeConnectionInit, Payload: json.RawMessage(`{"token":"t"}`)}},
		{name: "start", frame: `{"type":"start","id":"1","payload":{"query":"subscription { count }"}}`, want: Message{Type: TypeStart, ID: "1", Payload: json.RawMessage(`{"query":"subscription { count }"}`)}},
		{name: "stop", frame: `{"type":"stop","id":"abc"}`, want: Message{Type: TypeStop, ID: "abc"}},
		{name: "terminate", frame: `{"type":"connection_terminate"}`, want: Message{Type: TypeConnectionTerminate}},
		{name: "malformed", frame: `{"type":`, wantErr: &DecodeError{Reason: "malformed JSON"}},
		{name: "not an object", frame: `[1,2]`, wantErr: &DecodeError{Reason: "malformed JSON"}},
		{name: "missing type", frame: `{"id":"1"}`, wantErr: &DecodeError{ID: "1", Reason: "missing type"}},
		{name: "unknown type", frame: `{"type":"subscribe","id":"7"}`, wantErr: &DecodeError{ID: "7", Type: "subscribe", Reason: "unknown message type"}},
		{name: "start without id", frame: `{"type":"start","payload":{"query":"{ a }"}}`, wantErr: &DecodeError{Type: TypeStart, Reason: "missing id"}},
		{name: "case sensitive", frame: `{"type":"START","id":"1"}`, wantErr: &DecodeError{ID: "1", Type: "START", Reason: "unknown message type"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.frame))
			if tc.wantErr != nil {
				var de *DecodeError
				require.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
				require.Equal(t, tc.wantErr, de)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want.Type, got.Type)
			require.Equal(t, tc.want.ID, got.ID)
			if tc.want.Payload == nil {
				require.Empty(t, got.Payload)
			} else {
				require.JSONEq(t, string(tc.want.Payload), string(got.Payload))
			}
		})
	}
}

func TestEncodeConstructors(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{ConnectionAck(), `{"type":"connection_ack"}`},
		{KeepAlive(), `{"type":"connection_keep_alive"}`},
		{ConnectionError("bad"), `{"type":"connection_error","payload":{"message":"bad"}}`},
		{Complete("3"), `{"type":"complete","id":"3"}`},
		{Data("1", map[string]any{"data": map[string]any{"count": 1}}), `{"type":"data","id":"1","payload":{"data":{"count":1}}}`},
		{Error("2", ErrorPayload{Message: "dup"}), `{"type":"error","id":"2","payload":{"message":"dup"}}`},
	}
	for _, tc := range cases {
		b, err := Encode(tc.msg)
		require.NoError(t, err)
		require.JSONEq(t, tc.want, string(b))
	}
}

func TestEncodeUnserializablePayload(t *testing.T) {
	m := Data("1", map[string]any{"ch": make(chan int)})
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(m.Payload, &p))
	require.Contains(t, p.Message, "unserializable payload")
}

func TestDecodeEncodeServerFrames(t *testing.T) {
	b, err := Encode(Data("9", map[string]any{"data": nil}))
	require.NoError(t, err)
	m, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, TypeData, m.Type)
	require.False(t, m.Type.FromClient())
	require.True(t, TypeStart.FromClient())
}

func TestStartPayload(t *testing.T) {
	m := Message{Type: TypeStart, ID: "1", Payload: json.RawMessage(`{"query":"{ a }","variables":{"x":1},"operationName":"Op"}`)}
	p, err := m.Start()
	require.NoError(t, err)
	require.Equal(t, "{ a }", p.Query)
	require.Equal(t, "Op", p.OperationName)
	require.Equal(t, json.Number("1"), p.Variables["x"])

	empty, err := Message{Type: TypeStart, ID: "1"}.Start()
	require.NoError(t, err)
	require.Empty(t, empty.Query)

	_, err = Message{Type: TypeStart, ID: "1", Payload: json.RawMessage(`"str"`)}.Start()
	require.Error(t, err)
}

func TestParams(t *testing.T) {
	p, err := Message{Type: TypeConnectionInit}.Params()
	require.NoError(t, err)
	require.Empty(t, p)

	p, err = Message{Type: TypeConnectionInit, Payload: json.RawMessage(`{"authToken":"x"}`)}.Params()
	require.NoError(t, err)
	require.Equal(t, "x", p["authToken"])

	_, err = Message{Type: TypeConnectionInit, Payload: json.RawMessage(`[1]`)}.Params()
	require.Error(t, err)
}
