package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWithoutPayload(t *testing.T) {
	b, err := Encode(StopScanning, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stop_scanning"}`, string(b))
}

func TestDecodeAndBind(t *testing.T) {
	env, err := Decode([]byte(`{"event":"add_product","data":{"name":"Kecap","price":12000}}`))
	require.NoError(t, err)
	assert.Equal(t, AddProduct, env.Event)

	var req ProductRequest
	require.NoError(t, env.Bind(&req))
	assert.Equal(t, "Kecap", req.Name)
	assert.Equal(t, 12000.0, req.Price)
}

func TestBindKeepsDefaultsOnNull(t *testing.T) {
	env, err := Decode([]byte(`{"event":"get_transaction_history","data":null}`))
	require.NoError(t, err)
	req := HistoryRequest{Limit: 20}
	require.NoError(t, env.Bind(&req))
	assert.Equal(t, 20, req.Limit)
}

func TestDecodeRejectsMissingName(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.True(t, errors.Is(err, ErrNoEvent))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestBindTypeMismatch(t *testing.T) {
	env, err := Decode([]byte(`{"event":"toggle_simulation","data":{"enabled":"yes"}}`))
	require.NoError(t, err)
	var req ToggleRequest
	assert.Error(t, env.Bind(&req))
}

func TestMessageFrameRoundTrip(t *testing.T) {
	price := 5.0
	b, err := New(ProductAdded, ProductPayload{Name: "keju", Price: &price}).Frame()
	require.NoError(t, err)
	env, err := Decode(b)
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "keju", p["name"])
	assert.Equal(t, 5.0, p["price"])
}

func TestUpdateConfigEvent(t *testing.T) {
	assert.Equal(t, UpdateVisualConfig, UpdateConfigEvent("visual"))
}
