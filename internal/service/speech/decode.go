package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// FFmpegDecoder shells out to ffmpeg to convert a recorded clip (webm or
// anything else ffmpeg understands) into raw signed 16-bit little-endian
// mono PCM at the configured sample rate.
type FFmpegDecoder struct {
	SampleRate int
	Binary     string
}

// NewFFmpegDecoder builds a decoder for the given output sample rate.
func NewFFmpegDecoder(sampleRate int) *FFmpegDecoder {
	return &FFmpegDecoder{SampleRate: sampleRate, Binary: "ffmpeg"}
}

// DecodePCM converts the clip via stdin/stdout pipes, no temp files.
func (d *FFmpegDecoder) DecodePCM(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}

	cmd := exec.CommandContext(ctx, d.Binary,
		"-i", "pipe:0",
		"-ar", strconv.Itoa(d.SampleRate),
		"-ac", "1",
		"-f", "s16le",
		"pipe:1",
	)

	var out, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, stderr.String())
	}
	return out.Bytes(), nil
}
