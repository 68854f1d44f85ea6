package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Output encoding policy. Inputs may differ in codec, geometry and rate, so
// every merge re-encodes; single-threaded x264 keeps per-job resource use
// predictable on small hosts.
const (
	videoCodec   = "libx264"
	videoPreset  = "medium"
	videoCRF     = "23"
	audioCodec   = "aac"
	audioBitrate = "128k"
	encodeThread = "1"

	audioSampleRate = 48000
)

// DefaultCanvas is used when the first input cannot be probed.
var DefaultCanvas = Canvas{Width: 1280, Height: 720, FPS: 30}

const (
	thumbWidth   = 320
	thumbQuality = "3"
)

// BuildMergeArgs returns the ffmpeg argument list for req. Each input is
// trimmed with -ss/-t before its -i so the source is decoded only once, and a
// single concat filter joins the normalised streams in request order.
func BuildMergeArgs(req MergeRequest, canvas Canvas) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range req.Inputs {
		args = append(args,
			"-ss", formatSeconds(in.Start),
			"-t", formatSeconds(in.Duration),
			"-i", in.Path,
		)
	}

	args = append(args,
		"-filter_complex", BuildFilterGraph(len(req.Inputs), canvas),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-threads", encodeThread,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		req.OutputPath,
	)
	return args
}

// BuildFilterGraph scales and pads each input onto canvas, resamples its
// audio to 48 kHz stereo and concatenates the n normalised pairs.
func BuildFilterGraph(n int, canvas Canvas) string {
	if canvas.FPS <= 0 {
		canvas.FPS = DefaultCanvas.FPS
	}
	w, h := even(canvas.Width), even(canvas.Height)

	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b,
			"[%d:v:0]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=yuv420p[v%d];",
			i, w, h, w, h, canvas.FPS, i)
		fmt.Fprintf(&b,
			"[%d:a:0]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo[a%d];",
			i, audioSampleRate, i)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[outv][outa]", n)
	return b.String()
}

// BuildThumbnailArgs captures one frame at offset seconds, downscaled to a
// fixed width with the aspect ratio kept.
func BuildThumbnailArgs(videoPath, outputPath string, at float64) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", thumbWidth),
		"-q:v", thumbQuality,
		outputPath,
	}
}

// BuildProbeArgs asks ffprobe for container and stream metadata as JSON.
func BuildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

func formatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// even rounds down to an even dimension; libx264 with yuv420p rejects odd
// widths and heights.
func even(v int) int {
	if v < 2 {
		return 2
	}
	return v &^ 1
}
