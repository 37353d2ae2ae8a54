// Package audio converts captured samples to the relay wire format and
// serializes playback of synthesized speech chunks.
package audio

import (
	"encoding/base64"
	"errors"
)

const (
	// SampleRate is the fixed mono capture/playback rate of the relay channel.
	SampleRate = 24000

	// encodeChunkBytes bounds how much raw PCM is assembled per pass so that
	// very large capture buffers never blow up a single conversion call.
	encodeChunkBytes = 32 * 1024
)

var ErrOddPayload = errors.New("audio: pcm16 payload has odd length")

// EncodePCM16 quantizes float samples in [-1, 1] to little-endian PCM16 and
// returns the base64 encoding, safe for embedding in a JSON text frame.
func EncodePCM16(samples []float32) string {
	out := make([]byte, 0, len(samples)*2)
	chunk := make([]byte, 0, encodeChunkBytes)
	for _, s := range samples {
		v := QuantizeSample(s)
		chunk = append(chunk, byte(v), byte(uint16(v)>>8))
		if len(chunk) >= encodeChunkBytes {
			out = append(out, chunk...)
			chunk = chunk[:0]
		}
	}
	out = append(out, chunk...)
	return base64.StdEncoding.EncodeToString(out)
}

// QuantizeSample clamps s to [-1, 1] and scales it to int16 range.
// Positive values scale by 32767, negative by 32768, matching standard
// PCM16 quantization.
func QuantizeSample(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// DecodePCM16 is the inverse of EncodePCM16.
func DecodePCM16(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return SamplesFromBytes(raw)
}

// SamplesFromBytes converts raw little-endian PCM16 bytes to float samples.
func SamplesFromBytes(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, ErrOddPayload
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		if v < 0 {
			samples[i] = float32(v) / 32768
		} else {
			samples[i] = float32(v) / 32767
		}
	}
	return samples, nil
}
