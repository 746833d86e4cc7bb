package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(rate int, dur float64) []float32 {
	n := int(float64(rate) * dur)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestToLivePassThrough(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	assert.Equal(t, pcm, ToLive(pcm, 0))
	assert.Equal(t, pcm, ToLive(pcm, LiveSampleRate))
	assert.Equal(t, []byte{7}, ToLive([]byte{7}, 48000))
}

func TestToLiveDownsamples(t *testing.T) {
	in := encodePCM(tone(48000, 0.1))
	out := ToLive(in, 48000)
	assert.Len(t, out, len(in)/3)
}

func TestResampleKeepsAmplitude(t *testing.T) {
	out := Resample(tone(48000, 0.2), 48000, 16000)
	require.Len(t, out, 3200)

	var peak float32
	for _, s := range out[100 : len(out)-100] {
		peak = max(peak, float32(math.Abs(float64(s))))
	}
	assert.InDelta(t, 0.5, peak, 0.05)
}

func TestUpsample(t *testing.T) {
	out := Resample(tone(8000, 0.1), 8000, 16000)
	assert.Len(t, out, 1600)
}

func TestPCMRoundTripClamps(t *testing.T) {
	data := encodePCM([]float32{0, 1, -1, 2})
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(data[6:])))
	got := decodePCM(data)
	assert.InDelta(t, 1, got[1], 1e-4)
	assert.InDelta(t, -1, got[2], 1e-4)
}

func TestSincKernelUnityGain(t *testing.T) {
	var sum float32
	for _, k := range sincKernel(0.25, filterTaps) {
		sum += k
	}
	assert.InDelta(t, 1, sum, 1e-5)
}
