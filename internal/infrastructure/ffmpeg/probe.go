package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// MediaInfo 汇总 ffprobe 的探测结果。
type MediaInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
	Container       string
	HasVideo        bool
	HasAudio        bool
}

// DeliveryReady 判断源是否已是交付规格（H.264 + AAC + MP4 容器），
// 满足时可以跳过规范化转换。
func (i MediaInfo) DeliveryReady() bool {
	if i.VideoCodec != "h264" {
		return false
	}
	if i.HasAudio && i.AudioCodec != "aac" {
		return false
	}
	return strings.Contains(i.Container, "mp4")
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Probe 调用 ffprobe 解析媒体元信息。
// 没有视频流的输入视为错误（仅音频/损坏文件不可发布）。
func (t *Transcoder) Probe(ctx context.Context, path string) (MediaInfo, error) {
	cmd := exec.CommandContext(ctx, t.ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe %s: %w - %s", path, err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return MediaInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	return buildMediaInfo(out, path)
}

func buildMediaInfo(out probeOutput, path string) (MediaInfo, error) {
	info := MediaInfo{Container: out.Format.FormatName}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return MediaInfo{}, fmt.Errorf("parse duration %q for %s: %w", out.Format.Duration, path, err)
		}
		info.DurationSeconds = d
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = s.CodecName
			}
		}
	}

	if !info.HasVideo {
		return MediaInfo{}, fmt.Errorf("no video stream in %s", path)
	}
	if info.DurationSeconds <= 0 {
		return MediaInfo{}, fmt.Errorf("invalid duration %.2f in %s", info.DurationSeconds, path)
	}
	return info, nil
}
