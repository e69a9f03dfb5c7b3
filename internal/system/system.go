package system

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

var VideoExtensions = []string{".mp4", ".mov", ".webm", ".mkv", ".m4v", ".avi"}
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".pdf"}

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	}
}

// FindLatestFile returns the most recently modified file in dir whose
// extension is one of exts.
func FindLatestFile(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено подходящих файлов (%s)", dir, strings.Join(exts, ", "))
	}
	return latestFile, nil
}

func hasExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Tools are the external binaries the pipeline shells out to.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

// LookupTools resolves ffmpeg and ffprobe, preferring explicit paths.
func LookupTools(ffmpeg, ffprobe string) (Tools, error) {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	ffmpegPath, err := exec.LookPath(ffmpeg)
	if err != nil {
		return Tools{}, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := exec.LookPath(ffprobe)
	if err != nil {
		return Tools{}, fmt.Errorf("ffprobe not found: %w", err)
	}
	return Tools{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

// ListEncoders returns the names of all encoders ffmpeg was built with.
func ListEncoders(ctx context.Context, ffmpeg string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return parseEncoders(string(out)), nil
}

// parseEncoders reads lines like " V....D libvpx-vp9   libvpx VP9".
func parseEncoders(out string) map[string]bool {
	encoders := make(map[string]bool)
	past := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "------") {
			past = true
			continue
		}
		if !past {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

func BestH264Encoder(available map[string]bool) string {
	// Приоритеты:
	// 1. MacOS (VideoToolbox)
	// 2. NVIDIA (NVENC)
	// 3. Software (libx264)
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if available[name] {
			return name
		}
	}
	return "libx264"
}
