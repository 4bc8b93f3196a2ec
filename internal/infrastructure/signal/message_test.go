package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageValid(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"join","roomId":"room-1"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeJoin, msg.Type)
	assert.Equal(t, "room-1", msg.RoomID)

	msg, err = DecodeMessage([]byte(`{"type":"offer","roomId":"r","offer":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Offer)
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"missing type":      `{"roomId":"r"}`,
		"unknown type":      `{"type":"teleport","roomId":"r"}`,
		"join without room": `{"type":"join"}`,
		"join bad room":     `{"type":"join","roomId":"no spaces!"}`,
		"offer no payload":  `{"type":"offer","roomId":"r"}`,
		"answer no payload": `{"type":"answer","roomId":"r"}`,
		"candidate no room": `{"type":"ice-candidate","candidate":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(raw))
			assert.Error(t, err)
		})
	}
}
