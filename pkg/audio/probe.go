// Package audio 提供媒体时长探测能力，启动时决定一次实现，失败回退为 0.
package audio

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	nlog "github.com/yeisme/transvault/pkg/log"
)

// Prober 媒体时长探测接口，时长不可得时返回 0 与 false.
type Prober interface {
	DurationOf(ctx context.Context, path string) (seconds float64, ok bool)
}

// NewProber 根据 ffprobe 路径选择实现：路径为空或不可执行时返回 NopProber.
func NewProber(ffprobePath string) Prober {
	if ffprobePath == "" {
		return NopProber{}
	}

	if _, err := exec.LookPath(ffprobePath); err != nil {
		nlog.Logger().Warn().Str("ffprobe", ffprobePath).Msg("ffprobe not found, duration probing disabled")

		return NopProber{}
	}

	return &FFProbe{Path: ffprobePath}
}

// NopProber 永远返回 0 的空实现.
type NopProber struct{}

func (NopProber) DurationOf(_ context.Context, _ string) (float64, bool) {
	return 0, false
}

// FFProbe 基于 ffprobe 的实现.
type FFProbe struct {
	Path string
}

// DurationOf 调用 ffprobe 读取容器时长，任何失败都吞掉并返回 0.
func (p *FFProbe) DurationOf(ctx context.Context, path string) (float64, bool) {
	out, err := exec.CommandContext(ctx, p.Path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		nlog.Logger().Debug().Err(err).Str("path", path).Msg("ffprobe failed")

		return 0, false
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}

	return seconds, true
}
