package submission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		input string
		want  Rating
		ok    bool
	}{
		{"general", General, true},
		{"SAFE", General, true},
		{"Mature", Mature, true},
		{"questionable", Mature, true},
		{"adult", Adult, true},
		{"Explicit", Adult, true},
		{" adult ", Adult, true},
		{"nsfw", General, false},
		{"", General, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRating(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRatingJSON(t *testing.T) {
	var sub Submission
	err := json.Unmarshal([]byte(`{"id":"42","title":"Deer","rating":"explicit","keywords":["deer","forest"]}`), &sub)
	require.NoError(t, err)
	assert.Equal(t, Adult, sub.Rating)
	assert.Equal(t, []string{"deer", "forest"}, sub.Keywords)

	out, err := json.Marshal(sub)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"rating":"adult"`)
}

func TestRatingJSON_Unknown(t *testing.T) {
	var sub Submission
	err := json.Unmarshal([]byte(`{"rating":"spicy"}`), &sub)
	assert.Error(t, err)
}

func TestRatingMarshal_OutOfRange(t *testing.T) {
	_, err := Rating(9).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "rating(9)", Rating(9).String())
}
