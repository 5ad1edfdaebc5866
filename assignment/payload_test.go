package assignment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

func TestParsePayloadFields(t *testing.T) {
	p := ParsePayload(json.RawMessage(`{
		"photos": ["a.jpg", "", "b.jpg"],
		"bale_count": "42",
		"load_weight": 3.75,
		"moisture": "12.5",
		"time_required": 90,
		"signature": "data:image/png;base64,AAAA",
		"remarks": "  field was wet  ",
		"device_battery": 81
	}`))

	assert.Empty(t, p.Dropped)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p.Photos)
	require.NotNil(t, p.BaleCount)
	assert.Equal(t, int64(42), *p.BaleCount)
	require.NotNil(t, p.LoadWeight)
	assert.InDelta(t, 3.75, *p.LoadWeight, 1e-9)
	require.NotNil(t, p.Moisture)
	assert.InDelta(t, 12.5, *p.Moisture, 1e-9)
	assert.Equal(t, "90", p.TimeRequired)
	assert.Equal(t, "data:image/png;base64,AAAA", p.Signature)
}

func TestParsePayloadDropsMalformedFields(t *testing.T) {
	p := ParsePayload(json.RawMessage(`{"bale_count": 2.5, "load_weight": -1, "photos": {"x": 1}, "moisture": null, "actual_quantity": "4"}`))
	assert.Equal(t, []string{"bale_count", "load_weight", "photos"}, p.Dropped)
	assert.Nil(t, p.Moisture)
	require.NotNil(t, p.ActualQuantity)
	assert.InDelta(t, 4.0, *p.ActualQuantity, 1e-9)
}

func TestParsePayloadNotAnObject(t *testing.T) {
	assert.Equal(t, []string{"payload"}, ParsePayload(json.RawMessage(`[1,2]`)).Dropped)
	assert.True(t, ParsePayload(nil).Empty())
	assert.True(t, ParsePayload(json.RawMessage(`null`)).Empty())
}

func TestMergeIntoAccumulates(t *testing.T) {
	a := &store.Assignment{Photos: []string{"a.jpg"}, Remarks: "first"}

	changed := ParsePayload(json.RawMessage(`{"photos":["a.jpg","b.jpg"],"remarks":"second"}`)).MergeInto(a)
	assert.True(t, changed)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, a.Photos)
	assert.Equal(t, "first\nsecond", a.Remarks)

	// same payload again changes nothing
	changed = ParsePayload(json.RawMessage(`{"photos":"b.jpg","remarks":"second"}`)).MergeInto(a)
	assert.False(t, changed)

	w := 2.0
	a.LoadWeight = &w
	changed = ParsePayload(json.RawMessage(`{"load_weight":2}`)).MergeInto(a)
	assert.False(t, changed)
	changed = ParsePayload(json.RawMessage(`{"load_weight":2.5}`)).MergeInto(a)
	assert.True(t, changed)
	assert.InDelta(t, 2.5, *a.LoadWeight, 1e-9)
}
