package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSegments(t *testing.T) {
	tests := []struct {
		name    string
		ctm     string
		want    []segment
		wantErr bool
	}{
		{name: "two segments", ctm: "0.0 3.0\n3.0 10.0", want: []segment{{0, 3}, {3, 10}}},
		{name: "skips empty lines", ctm: "\n0.0 3.0\n\n3.0 10.0\n", want: []segment{{0, 3}, {3, 10}}},
		{name: "extra fields ignored", ctm: "0.0 3.0 spk1\n3.0 10.0 spk2", want: []segment{{0, 3}, {3, 10}}},
		{name: "empty", ctm: "", wantErr: true},
		{name: "one field", ctm: "0.0", wantErr: true},
		{name: "not a number", ctm: "0.0 olia", wantErr: true},
		{name: "end before start", ctm: "3.0 1.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSegments(tt.ctm)
			if tt.wantErr {
				require.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDiarize(t *testing.T) {
	res, err := formatText(Diarize, "0.0 3.0\n3.0 10.5")
	require.Nil(t, err)
	require.Equal(t, "[0.00 - 3.00]\n\n[3.00 - 10.50]\n\n", res)
}

func TestFormatRecognize(t *testing.T) {
	res, err := formatText(Recognize, "u1 1 0.0 0.5 labas 0.99\nu1 1 0.5 0.4 rytas 0.55")
	require.Nil(t, err)
	require.Equal(t, "labas {rytas|0.55}\n", res)
}

func TestFormatRecognize_NoConfidence(t *testing.T) {
	res, err := formatText(Recognize, "u1 1 0.0 0.5 labas")
	require.Nil(t, err)
	require.Equal(t, "labas\n", res)
}

func TestFormatRecognize_Fails(t *testing.T) {
	_, err := formatText(Recognize, "u1 1 0.0")
	require.NotNil(t, err)
	_, err = formatText(Recognize, "")
	require.NotNil(t, err)
	_, err = formatText(Recognize, "u1 1 0.0 0.5 labas olia")
	require.NotNil(t, err)
}

func TestFormatAlign_Passthrough(t *testing.T) {
	res, err := formatText(Align, "whatever text\nwith lines")
	require.Nil(t, err)
	require.Equal(t, "whatever text\nwith lines", res)
}

func TestParseServiceType(t *testing.T) {
	for _, s := range []ServiceType{Diarize, Recognize, Align} {
		got, err := ParseServiceType(s.String())
		require.Nil(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseServiceType("olia")
	require.NotNil(t, err)
}
