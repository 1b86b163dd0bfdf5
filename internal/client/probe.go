package client

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FfprobeProber measures media duration by shelling out to ffprobe. It
// implements videogen.DurationProber.
type FfprobeProber struct {
	binary string
}

func NewFfprobeProber(binary string) *FfprobeProber {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FfprobeProber{binary: binary}
}

// ProbeDurationSeconds returns the container duration of the file at path.
func (p *FfprobeProber) ProbeDurationSeconds(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe output %q: %w", out, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration %f", secs)
	}
	return secs, nil
}
