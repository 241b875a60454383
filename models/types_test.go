package models

import (
	"encoding/json"
	"testing"
)

func TestResultJSON(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name:   "degraded",
			result: Result{Label: Awake, Confidence: 0, Error: "decode: invalid base64"},
			want:   `{"prediction":"awake","confidence":0,"error":"decode: invalid base64"}`,
		},
		{
			name:   "smoothed",
			result: Result{Label: Drowsy, Confidence: 61.5, RawLabel: Drowsy, RawConfidence: 88.1, BufferSize: 3},
			want:   `{"prediction":"drowsy","confidence":61.5,"raw_prediction":"drowsy","raw_confidence":88.1,"buffer_size":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
