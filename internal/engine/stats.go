package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/session"
	"github.com/ivlev/clipton/internal/system"
)

func (s *Studio) reportStats(sess *session.RenderSession, art *capture.Artifact) {
	total := time.Since(sess.Started)
	frames := sess.TotalFrames()
	fps := 0.0
	if total > 0 {
		fps = float64(art.Frames) / total.Seconds()
	}
	memory := "n/a"
	if m, err := system.ReadMemory(); err == nil {
		memory = m.String()
	}

	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Session: %s\n"+
			"Total Time: %.2fs\n"+
			"Drawn Frames: %d\n"+
			"Captured Frames: %d (%.2f fps)\n"+
			"Codec: %s | Chunks: %d | Size: %.2f MiB\n"+
			"Memory: %s\n"+
			"----------------------------\n",
		s.cfg.BuildVersion, sess.ID, total.Seconds(), frames, art.Frames, fps,
		art.Codec, art.Chunks, float64(len(art.Data))/(1<<20), memory,
	)
	fmt.Print(report)

	perClip := ""
	for _, p := range countdown.Positions() {
		perClip += fmt.Sprintf(" #%d=%d", p, sess.Frames[p])
	}
	logEntry := fmt.Sprintf("[%s] Build: %s | Session: %s | Output: %s | Total: %.2fs | Frames:%s | Codec: %s | Bytes: %d | FPS: %.2f\n",
		s.now().Format("2006-01-02 15:04:05"),
		s.cfg.BuildVersion,
		sess.ID,
		art.Filename,
		total.Seconds(),
		perClip,
		art.Codec,
		len(art.Data),
		fps,
	)

	f, err := os.OpenFile(s.cfg.StatsLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("[!] Не удалось записать %s: %v\n", s.cfg.StatsLog, err)
		return
	}
	defer f.Close()
	f.WriteString(logEntry)
}
