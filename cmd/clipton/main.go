package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/config"
	"github.com/ivlev/clipton/internal/engine"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/system"
)

var buildVersion = "dev"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	successStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 2)
)

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	projectPtr := flag.String("project", "", "Путь к YAML-файлу проекта (клипы, заголовок, цвета)")
	outputPtr := flag.String("output", "", "Путь к видео (если пусто, имя строится из заголовка в output/)")
	presetPtr := flag.String("preset", "", "Пресет холста: 1080 (1080x1920) или 720 (720x1280)")
	fpsPtr := flag.Int("fps", 0, "FPS (0 - из проекта)")
	codecPtr := flag.String("codec", "", "Порядок кодеков через запятую: vp9,vp8,h264")
	orderPtr := flag.String("order", "", "Порядок показа: ascending-wrap, descending или список 2,3,4,5,1")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности и дописать benchmark.log")
	logLevelPtr := flag.String("log-level", "", "Уровень логов: debug, info, warn, error")
	timestampPtr := flag.Bool("timestamp", false, "Добавить время к имени файла")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		log.Printf("[!] Не удалось прочитать .env: %v", err)
	}
	cfg, err := config.Load(*projectPtr)
	if err != nil {
		log.Fatalf("[-] %v", err)
	}
	cfg.ApplyEnv()
	cfg.BuildVersion = buildVersion

	if err := cfg.ApplyPreset(*presetPtr); err != nil {
		log.Fatalf("[-] %v", err)
	}
	if *fpsPtr > 0 {
		cfg.FPS = *fpsPtr
	}
	if *codecPtr != "" {
		cfg.Codecs = strings.Split(*codecPtr, ",")
	}
	if *orderPtr != "" {
		cfg.Order = *orderPtr
	}
	if *logLevelPtr != "" {
		cfg.LogLevel = *logLevelPtr
	}
	cfg.ShowStats = cfg.ShowStats || *statsPtr
	cfg.Timestamp = cfg.Timestamp || *timestampPtr

	logger := system.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	for _, d := range []string{cfg.ClipsDir, cfg.OutputDir} {
		os.MkdirAll(d, 0755)
	}

	studio, err := engine.NewStudio(cfg, engine.Deps{Logger: logger})
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации: %v", err)
	}
	defer studio.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(titleStyle.Render("--- [CLIPTON: TOP-5 COUNTDOWN] ---"))
	w, h, _ := cfg.CanvasSize()
	fmt.Println(infoStyle.Render(fmt.Sprintf("[*] Холст: %dx%d @ %d FPS | Порядок: %s", w, h, cfg.FPS, cfg.Order)))

	if err := studio.LoadClips(ctx); err != nil {
		fmt.Println(errorStyle.Render("[-] " + failure.Message(err)))
		os.Exit(1)
	}

	var outPath string
	var failed bool
	err = studio.Generate(ctx, engine.Callbacks{
		OnProgress: func(percent int, label string) {
			fmt.Printf("%s %s\n", barStyle.Render(progressBar(percent)), infoStyle.Render(label))
		},
		OnSuccess: func(art *capture.Artifact) {
			outPath = *outputPtr
			if outPath == "" {
				outPath = filepath.Join(cfg.OutputDir, art.Filename)
			}
			if err := os.WriteFile(outPath, art.Data, 0644); err != nil {
				fmt.Println(errorStyle.Render(fmt.Sprintf("[-] Не удалось сохранить видео: %v", err)))
				failed = true
				return
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("[+++] Успех! Результат: %s\n%s | %.2f MiB",
				outPath, art.MIME, float64(len(art.Data))/(1<<20))))
		},
		OnFailure: func(kind failure.Kind, message string) {
			fmt.Println(errorStyle.Render(fmt.Sprintf("[-] %s: %s", kind, message)))
		},
	})
	if err != nil || failed {
		os.Exit(1)
	}
}

func progressBar(percent int) string {
	const width = 20
	filled := percent * width / 100
	filled = max(0, min(width, filled))
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}
