// Package audio contains PCM helpers shared by the speech services.
package audio

import "encoding/binary"

const wavHeaderSize = 44

// WrapPCM wraps raw PCM16LE samples in a canonical 44-byte WAV header.
func WrapPCM(pcm []byte, sampleRate, channels int) []byte {
	bitsPerSample := uint16(16)
	byteRate := uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8
	blockAlign := uint16(channels) * bitsPerSample / 8
	dataSize := uint32(len(pcm))

	wav := make([]byte, wavHeaderSize+len(pcm))

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], 36+dataSize)
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], 1) // PCM format
	binary.LittleEndian.PutUint16(wav[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], byteRate)
	binary.LittleEndian.PutUint16(wav[32:34], blockAlign)
	binary.LittleEndian.PutUint16(wav[34:36], bitsPerSample)

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], dataSize)

	copy(wav[wavHeaderSize:], pcm)
	return wav
}

// DurationMs returns the duration of raw PCM16LE audio in milliseconds.
func DurationMs(pcm []byte, sampleRate, channels int) int {
	bytesPerMs := sampleRate * channels * 2 / 1000
	if bytesPerMs == 0 {
		bytesPerMs = 1
	}
	return len(pcm) / bytesPerMs
}
