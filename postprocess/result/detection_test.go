package result

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectionExportRoundTrip(t *testing.T) {

	dets := []Detection{
		Detection{
			ClassID:    0,
			ClassName:  "person",
			Confidence: 0.9134,
			Box:        BoxRect{XMin: 10, YMin: 20, XMax: 110, YMax: 220},
			Segments:   [][2]float32{{10, 20}, {110, 20}, {110, 220}},
		}.WithTrackID(5),
		{
			ClassID:    2,
			ClassName:  "car",
			Confidence: 0.4,
			Box:        BoxRect{XMin: 0, YMin: 0, XMax: 3, YMax: 2},
			Mask:       [][]float32{{0, 1, 0}, {0.5, 1, 1}},
		},
	}

	buf, err := json.Marshal(dets)
	require.NoError(t, err)

	var got []Detection
	require.NoError(t, json.Unmarshal(buf, &got))

	if diff := cmp.Diff(dets, got, cmpopts.IgnoreFields(Detection{}, "ID", "MaskErr"),
		cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectionExportShape(t *testing.T) {

	det := Detection{
		ClassID:    1,
		ClassName:  "bird",
		Confidence: 0.5,
		Box:        BoxRect{XMin: 1, YMin: 2, XMax: 3, YMax: 4},
		ID:         99,
	}

	buf, err := json.Marshal(det)
	require.NoError(t, err)

	assert.JSONEq(t, `{"class_id":1,"class":"bird","confidence":0.5,
		"bbox":{"x_min":1,"y_min":2,"x_max":3,"y_max":4}}`, string(buf))

	buf, err = json.Marshal(det.WithTrackID(7))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf, &raw))
	assert.EqualValues(t, 7, raw["object_id"])
}

func TestBoxRectCenter(t *testing.T) {

	tests := []struct {
		box  BoxRect
		x, y int
	}{
		{BoxRect{0, 0, 10, 10}, 5, 5},
		{BoxRect{1, 1, 4, 6}, 2, 3},
		{BoxRect{7, 3, 7, 3}, 7, 3},
	}

	for _, tt := range tests {
		x, y := tt.box.Center()
		assert.Equal(t, tt.x, x)
		assert.Equal(t, tt.y, y)
	}
}

func TestIDGenerator(t *testing.T) {

	gen := NewIDGenerator()
	assert.Equal(t, int64(1), gen.GetNext())
	assert.Equal(t, int64(2), gen.GetNext())

	gen.Reset()
	assert.Equal(t, int64(1), gen.GetNext())
}
