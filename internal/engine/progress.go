package engine

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// progressParser turns ffmpeg "-progress" key=value output into whole-percent
// updates. Only changes are reported, and 100 is reported at most once.
type progressParser struct {
	total float64 // seconds
	last  int
	emit  func(int)
}

func newProgressParser(total float64, emit func(int)) *progressParser {
	return &progressParser{total: total, last: -1, emit: emit}
}

// consume reads r to EOF. It keeps draining after parse errors so the
// process never blocks on a full pipe.
func (p *progressParser) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *progressParser) line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	switch key {
	// out_time_ms is in microseconds despite its name.
	case "out_time_us", "out_time_ms":
		if p.total <= 0 {
			return
		}
		us, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		pct := int(math.Min(99, math.Max(0, us/1e6/p.total*100)))
		p.report(pct)
	case "progress":
		if value == "end" {
			p.report(100)
		}
	}
}

func (p *progressParser) report(pct int) {
	if pct <= p.last {
		return
	}
	p.last = pct
	if p.emit != nil {
		p.emit(pct)
	}
}
