// Package ffmpeg 封装 ffmpeg/ffprobe 子进程调用：
// 探测、容器规范化、HLS 多码率阶梯编码与缩略图提取。
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/go-kratos/kratos/v2/log"
)

// Rendition 描述阶梯中的一档清晰度。
type Rendition struct {
	Name    string
	Width   int
	Height  int
	Bitrate string
	MaxRate string
	BufSize string
}

// ladder 是固定的三档编码阶梯，流索引顺序从高到低。
var ladder = []Rendition{
	{Name: "1080p", Width: 1920, Height: 1080, Bitrate: "4500k", MaxRate: "5000k", BufSize: "7500k"},
	{Name: "720p", Width: 1280, Height: 720, Bitrate: "2500k", MaxRate: "2750k", BufSize: "3750k"},
	{Name: "480p", Width: 854, Height: 480, Bitrate: "1000k", MaxRate: "1100k", BufSize: "1500k"},
}

// Qualities 返回阶梯的清晰度标签。
func Qualities() []string {
	names := make([]string, len(ladder))
	for i, r := range ladder {
		names[i] = r.Name
	}
	return names
}

// MasterPlaylist 是主清单文件名。
const MasterPlaylist = "master.m3u8"

// thumbnailOffsetRatio 指定取帧位置在片长中的比例。
const thumbnailOffsetRatio = 0.1

// Transcoder 通过子进程调用 ffmpeg/ffprobe。
// 重编码操作受墙钟超时约束，超时后子进程被强制终止。
type Transcoder struct {
	ffmpegBin  string
	ffprobeBin string
	timeout    time.Duration
	log        *log.Helper
}

// NewTranscoder 创建 Transcoder。
func NewTranscoder(cfg configloader.PipelineConfig, logger log.Logger) *Transcoder {
	return &Transcoder{
		ffmpegBin:  "ffmpeg",
		ffprobeBin: "ffprobe",
		timeout:    cfg.TranscodeTimeout,
		log:        log.NewHelper(logger),
	}
}

// SegmentDuration 按片长选择 HLS 分片时长（秒）。
// 短片需要细粒度 seek，长片用更大的分片控制清单体积与请求数。
func SegmentDuration(durationSeconds float64) int {
	switch {
	case durationSeconds <= 60:
		return 4
	case durationSeconds <= 300:
		return 8
	case durationSeconds <= 600:
		return 10
	default:
		return 12
	}
}

// Normalize 将任意输入重编码为 H.264/AAC 的 MP4 交付副本。
func (t *Transcoder) Normalize(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	}
	return t.run(ctx, t.timeout, args)
}

// EncodeLadder 单次编码产出三档 HLS 阶梯。
// 产物平铺在 outDir 下：master.m3u8、{quality}.m3u8 与 {quality}_{seq}.ts。
func (t *Transcoder) EncodeLadder(ctx context.Context, src, outDir string, segSeconds int, hasAudio bool) error {
	return t.run(ctx, t.timeout, ladderArgs(src, outDir, segSeconds, hasAudio))
}

// ladderArgs 构造阶梯编码的完整参数列表。
// filter_complex 将解码后的视频拆成三路独立缩放分支，一次编码全部档位。
func ladderArgs(src, outDir string, segSeconds int, hasAudio bool) []string {
	var filter strings.Builder
	filter.WriteString(fmt.Sprintf("[0:v]split=%d", len(ladder)))
	for i := range ladder {
		filter.WriteString(fmt.Sprintf("[v%d]", i+1))
	}
	for i, r := range ladder {
		filter.WriteString(fmt.Sprintf(";[v%d]scale=w=%d:h=%d[v%dout]", i+1, r.Width, r.Height, i+1))
	}

	args := []string{
		"-y",
		"-i", src,
		"-filter_complex", filter.String(),
	}

	for i, r := range ladder {
		args = append(args,
			"-map", fmt.Sprintf("[v%dout]", i+1),
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), r.Bitrate,
			fmt.Sprintf("-maxrate:v:%d", i), r.MaxRate,
			fmt.Sprintf("-bufsize:v:%d", i), r.BufSize,
		)
	}
	if hasAudio {
		for i := range ladder {
			args = append(args,
				"-map", "a:0",
				fmt.Sprintf("-c:a:%d", i), "aac",
				fmt.Sprintf("-b:a:%d", i), "128k",
				"-ac", "2",
			)
		}
	}

	streamMap := make([]string, len(ladder))
	for i, r := range ladder {
		if hasAudio {
			streamMap[i] = fmt.Sprintf("v:%d,a:%d,name:%s", i, i, r.Name)
		} else {
			streamMap[i] = fmt.Sprintf("v:%d,name:%s", i, r.Name)
		}
	}

	args = append(args,
		"-f", "hls",
		"-var_stream_map", strings.Join(streamMap, " "),
		"-master_pl_name", MasterPlaylist,
		"-hls_time", strconv.Itoa(segSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "%v_%03d.ts"),
		filepath.Join(outDir, "%v.m3u8"),
	)
	return args
}

// Thumbnail 在片长 10% 处取一帧，输出压缩 JPEG。
func (t *Transcoder) Thumbnail(ctx context.Context, src, dst string, durationSeconds float64) error {
	offset := durationSeconds * thumbnailOffsetRatio
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.2f", offset),
		"-i", src,
		"-vframes", "1",
		"-vf", "scale=640:-2",
		"-q:v", "2",
		dst,
	}
	return t.run(ctx, time.Minute, args)
}

// run 执行 ffmpeg 子进程；timeout 到期后 CommandContext 发送 kill。
func (t *Transcoder) run(ctx context.Context, timeout time.Duration, args []string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.ffmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s", timeout)
		}
		return fmt.Errorf("ffmpeg failed: %w - %s", err, tailLines(stderr.String(), 5))
	}
	t.log.Debugf("ffmpeg finished: args=%d elapsed=%s", len(args), time.Since(start).Round(time.Millisecond))
	return nil
}

// tailLines 截取 stderr 末尾若干行，错误信息够用且不刷爆日志。
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
