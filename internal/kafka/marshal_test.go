package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
		Qty     int    `json:"qty"`
	}

	raw := MustMarshal(payload{OrderID: "ORD-1", Qty: 3})
	got, err := UnwrapPayload[payload](json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, payload{OrderID: "ORD-1", Qty: 3}, got)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"qty":"three"}`))
	assert.ErrorContains(t, err, "decode payload")
}
