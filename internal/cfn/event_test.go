package cfn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringProp(t *testing.T) {
	event := Event{ResourceProperties: map[string]any{
		"Name":  "value",
		"Empty": "",
		"Num":   3,
	}}

	v, err := event.StringProp("Name")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = event.StringProp("Missing")
	assert.ErrorContains(t, err, "missing required property")

	_, err = event.StringProp("Empty")
	assert.ErrorContains(t, err, "non-empty string")

	_, err = event.StringProp("Num")
	assert.Error(t, err)
}

func TestIntProp(t *testing.T) {
	event := Event{ResourceProperties: map[string]any{
		"Stringified": "30",
		"Float":       float64(45),
		"Fraction":    30.5,
		"Native":      60,
		"Negative":    "-5",
		"Word":        "soon",
		"Bool":        true,
	}}

	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"Stringified", 30, false},
		{"Float", 45, false},
		{"Fraction", 0, true},
		{"Native", 60, false},
		{"Negative", -5, false},
		{"Word", 0, true},
		{"Bool", 0, true},
		{"Missing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, err := event.IntProp(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestOutcomeConstructors(t *testing.T) {
	success := Success("d-1_30", map[string]any{"Arn": "arn:aws:sagemaker:::config"})
	assert.Equal(t, StatusSuccess, success.Status)
	assert.Equal(t, "d-1_30", success.PhysicalResourceID)
	assert.Empty(t, success.Reason)

	// A nil data map still serializes as an object, never null.
	assert.NotNil(t, Success("id", nil).Data)

	failure := Failure("d-1_30", errors.New("boom"))
	assert.Equal(t, StatusFailed, failure.Status)
	assert.Equal(t, "boom", failure.Reason)
	assert.Equal(t, "boom", failure.Data["Error"])
	assert.Equal(t, "d-1_30", failure.PhysicalResourceID)
}
