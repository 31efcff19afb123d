package ffmpeg

import (
	"context"
	"os/exec"
	"runtime"
)

// SoftwareH264Encoder is the fallback when no hardware encoder passes its
// smoke test.
const SoftwareH264Encoder = "libx264"

// EncoderDetector probes which H.264 encoder the local ffmpeg can actually
// drive. An encoder can be compiled in yet unusable because the device or
// driver is missing, so each candidate runs a tiny null encode.
type EncoderDetector struct {
	ffmpegPath string
	candidates []string
	test       func(ctx context.Context, encoder string) bool
}

// NewEncoderDetector creates a detector with the platform's hardware
// encoder candidates in preference order.
func NewEncoderDetector(ffmpegPath string) *EncoderDetector {
	d := &EncoderDetector{
		ffmpegPath: ffmpegPath,
		candidates: h264Candidates(runtime.GOOS),
	}
	d.test = d.smokeTest
	return d
}

// SelectH264 returns the first candidate that survives a null encode,
// falling back to software.
func (d *EncoderDetector) SelectH264(ctx context.Context) string {
	for _, enc := range d.candidates {
		if d.test(ctx, enc) {
			return enc
		}
	}
	return SoftwareH264Encoder
}

func h264Candidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"h264_videotoolbox"}
	case "linux":
		return []string{"h264_nvenc", "h264_qsv", "h264_vaapi"}
	case "windows":
		return []string{"h264_nvenc", "h264_qsv", "h264_amf"}
	default:
		return nil
	}
}

// smokeTest encodes a fraction of a second of null video with the encoder.
// QSV and VA-API need their device initialized and frames uploaded first.
func (d *EncoderDetector) smokeTest(ctx context.Context, encoder string) bool {
	args := []string{"-hide_banner"}
	switch encoder {
	case "h264_qsv":
		args = append(args, "-init_hw_device", "qsv=hw")
	case "h264_vaapi":
		args = append(args, "-vaapi_device", "/dev/dri/renderD128")
	}
	args = append(args, "-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1")
	switch encoder {
	case "h264_qsv":
		args = append(args, "-vf", "hwupload=extra_hw_frames=64,format=qsv")
	case "h264_vaapi":
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-c:v", encoder, "-t", "0.01", "-f", "null", "-")
	return exec.CommandContext(ctx, d.ffmpegPath, args...).Run() == nil
}
