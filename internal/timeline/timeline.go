// Package timeline lays clips out on the merged output's timeline and renders
// that layout as a CMX3600 edit decision list.
package timeline

import (
	"fmt"
	"math"
	"strings"
)

// Segment is one source range placed on the output timeline.
type Segment struct {
	Name   string
	Source string  // source file name, written as a comment
	Start  float64 // source in, seconds
	End    float64 // source out, seconds
}

// Duration is the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Offsets returns where each segment begins in the concatenated output and
// the total output length. Segments keep their given order.
func Offsets(segments []Segment) ([]float64, float64) {
	offsets := make([]float64, len(segments))
	var pos float64
	for i, s := range segments {
		offsets[i] = pos
		pos += s.Duration()
	}
	return offsets, pos
}

// GenerateEDL renders segments as a single-track CMX3600 EDL. Source and
// record times are frame-rounded timecodes at frameRate.
func GenerateEDL(title string, segments []Segment, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}
	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", SanitizeName(title, 70))
	if dropFrame {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}
	b.WriteString("\n")

	offsets, _ := Offsets(segments)
	for i, s := range segments {
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "AA/V",
			Timecode(s.Start, fps), Timecode(s.End, fps),
			Timecode(offsets[i], fps), Timecode(offsets[i]+s.Duration(), fps),
		)
		if name := SanitizeName(s.Name, 60); name != "" {
			fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", name)
		}
		if s.Source != "" {
			fmt.Fprintf(&b, "* SOURCE FILE:  %s\n", SanitizeName(s.Source, 120))
		}
	}
	return b.String()
}

// Timecode formats seconds as HH:MM:SS:FF at fps.
func Timecode(seconds float64, fps int) string {
	if seconds < 0 {
		seconds = 0
	}
	totalFrames := int(math.Round(seconds * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d",
		totalSeconds/3600, (totalSeconds/60)%60, totalSeconds%60, frames)
}
