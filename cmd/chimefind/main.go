package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dingercity/chimefind/internal/audio"
	"github.com/dingercity/chimefind/internal/config"
	"github.com/dingercity/chimefind/internal/detect"
	"github.com/dingercity/chimefind/internal/report"
	"github.com/dingercity/chimefind/internal/template"
	"github.com/dingercity/chimefind/pkg/logger"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	configPath string
)

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("CHIMEFIND_DB_PATH", "chimefind.sqlite3"), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("CHIMEFIND_TEMP_DIR", "/tmp"), "Directory for temporary audio conversion files")
	flag.StringVar(&configPath, "config", os.Getenv("CHIMEFIND_CONFIG"), "Path to a YAML config file (optional)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig() config.Config {
	log := logger.GetLogger()
	if configPath == "" {
		return config.Default()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		log.Fatalf("Config load failed: %v", err)
	}
	return cfg
}

func assetDir() string {
	return filepath.Join(filepath.Dir(dbPath), "templates")
}

func main() {
	// Initialize logger
	log := logger.GetLogger()

	printBanner()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Infof("Executing command: %s", command)

	switch command {
	case "detect":
		handleDetect()
	case "fetch":
		handleFetch()
	case "template":
		handleTemplate()
	case "runs":
		handleRuns()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
      _     _                __ _           _
  ___| |__ (_)_ __ ___   ___ / _(_)_ __   __| |
 / __| '_ \| | '_ ' _ \ / _ \ |_| | '_ \ / _' |
| (__| | | | | | | | | |  __/  _| | | | | (_| |
 \___|_| |_|_|_| |_| |_|\___|_| |_|_| |_|\__,_|

        Chime Motif Detection CLI Tool
`
	fmt.Println(banner)
}

func handleDetect() {
	log := logger.GetLogger()

	// Manually extract audio file and flags
	args := os.Args[2:]
	var audioPath string
	var flagArgs []string

	// Separate the audio file path from flags
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && audioPath == "" {
			audioPath = arg
		} else {
			flagArgs = append(flagArgs, args[i:]...)
			break
		}
	}

	detectCmd := flag.NewFlagSet("detect", flag.ExitOnError)
	jsonOut := detectCmd.String("json", "", "Write the event list as JSON to this path ('-' for stdout)")
	noSave := detectCmd.Bool("no-save", false, "Skip recording the run in the database")

	detectCmd.Parse(flagArgs)

	if audioPath == "" {
		fmt.Println("Error: audio file path required")
		fmt.Println("Usage: chimefind detect <audio_file> [--json <path>] [--no-save]")
		os.Exit(1)
	}

	cfg := loadConfig()
	if err := config.Validate(cfg); err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		log.Fatalf("Config validation failed: %v", err)
	}

	fmt.Println("\n🔧 Opening template catalog...")
	catalog, err := template.OpenCatalog(dbPath, assetDir())
	if err != nil {
		fmt.Printf("❌ Failed to open catalog: %v\n", err)
		log.Fatalf("Catalog open failed: %v", err)
	}
	defer catalog.Close()

	templates, err := catalog.LoadAll(cfg.SampleRate)
	if err != nil {
		fmt.Printf("❌ Failed to load templates: %v\n", err)
		log.Fatalf("Template load failed: %v", err)
	}
	if len(templates) == 0 {
		fmt.Println("❌ No templates registered; add some with 'chimefind template add'")
		os.Exit(1)
	}
	fmt.Printf("   Loaded %d template(s)\n", len(templates))

	ctx := context.Background()

	wavPath := audioPath
	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		fmt.Println("🎞  Converting input to mono WAV...")
		wavPath, err = audio.ConvertToMonoWAV(ctx, audioPath, tempDir, audio.ConvertWAVConfig{SampleRate: cfg.SampleRate})
		if err != nil {
			fmt.Printf("❌ Failed to convert audio: %v\n", err)
			log.Fatalf("Conversion failed: %v", err)
		}
		defer os.Remove(wavPath)
	}

	fmt.Println("🎵 Decoding audio...")
	waveform, err := audio.ReadWAV(wavPath)
	if err != nil {
		fmt.Printf("❌ Failed to decode audio: %v\n", err)
		log.Fatalf("Decode failed: %v", err)
	}
	fmt.Printf("   %s of audio at %s Hz\n",
		(time.Duration(waveform.Seconds()*float64(time.Second))).Round(time.Second),
		humanize.Comma(int64(waveform.SampleRate)))

	fmt.Println("🔍 Scanning for chime motifs...")
	fmt.Println("   This may take a few moments for long recordings")

	started := time.Now()
	pipeline := detect.NewPipeline(cfg, log)
	events, err := pipeline.Run(ctx, waveform, templates)
	if err != nil {
		fmt.Printf("\n❌ Detection failed: %v\n", err)
		log.Fatalf("Detection run failed: %v", err)
	}
	elapsed := time.Since(started)

	log.Infof("Detection complete: %d event(s) in %s", len(events), elapsed.Round(time.Millisecond))

	if len(events) == 0 {
		fmt.Println("\n📭 No chime events found")
	} else {
		fmt.Printf("\n✅ Found %d event(s) in %s!\n\n", len(events), elapsed.Round(time.Millisecond))
		for i, ev := range events {
			fmt.Printf("%d. %s  (%.2fs)\n", i+1, formatTimestamp(ev.Time), ev.Time)
			fmt.Printf("   Agreement: %d template(s) | Confidence: %s | Score sum: %.3f\n",
				ev.Agreement, ev.Confidence, ev.ScoreSum)
			fmt.Printf("   Templates: %s\n\n", strings.Join(ev.TemplateIDs, ", "))
		}
	}

	if !*noSave {
		store, err := report.OpenStore(dbPath)
		if err != nil {
			fmt.Printf("❌ Failed to open report store: %v\n", err)
			log.Fatalf("Report store open failed: %v", err)
		}
		defer store.Close()

		runID, err := store.SaveRun(audioPath, events, elapsed)
		if err != nil {
			fmt.Printf("❌ Failed to save run: %v\n", err)
			log.Fatalf("SaveRun failed: %v", err)
		}
		fmt.Printf("💾 Run recorded: %s\n", runID)
	}

	if *jsonOut != "" {
		out := os.Stdout
		if *jsonOut != "-" {
			f, err := os.Create(*jsonOut)
			if err != nil {
				fmt.Printf("❌ Failed to create JSON output: %v\n", err)
				log.Fatalf("JSON output failed: %v", err)
			}
			defer f.Close()
			out = f
		}
		if err := report.WriteJSON(out, audioPath, events); err != nil {
			fmt.Printf("❌ Failed to write JSON: %v\n", err)
			log.Fatalf("JSON encode failed: %v", err)
		}
		if *jsonOut != "-" {
			fmt.Printf("📄 JSON written to %s\n", *jsonOut)
		}
	}
}

func handleFetch() {
	log := logger.GetLogger()

	if len(os.Args) < 3 {
		fmt.Println("Usage: chimefind fetch <video_url> [--out <dir>]")
		os.Exit(1)
	}

	videoURL := os.Args[2]
	fetchCmd := flag.NewFlagSet("fetch", flag.ExitOnError)
	outDir := fetchCmd.String("out", ".", "Directory to place the downloaded WAV")
	fetchCmd.Parse(os.Args[3:])

	if !audio.IsVideoURL(videoURL) {
		fmt.Printf("❌ Not a valid video URL: %s\n", videoURL)
		os.Exit(1)
	}

	cfg := loadConfig()

	fmt.Println("📥 Downloading audio track...")
	fmt.Println("   This may take a few moments depending on video length")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	wavPath, err := audio.FetchAudio(ctx, videoURL, *outDir, cfg.SampleRate)
	if err != nil {
		fmt.Printf("\n❌ Failed to fetch audio: %v\n", err)
		log.Fatalf("Fetch failed: %v", err)
	}

	info, err := os.Stat(wavPath)
	if err == nil {
		fmt.Printf("\n✅ Saved %s (%s)\n", wavPath, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Printf("\n✅ Saved %s\n", wavPath)
	}
	log.Infof("Fetched %s to %s", videoURL, wavPath)
}

func handleTemplate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: chimefind template <add|list|remove> ...")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "add":
		handleTemplateAdd()
	case "list":
		handleTemplateList()
	case "remove":
		handleTemplateRemove()
	default:
		fmt.Printf("Unknown template subcommand: %s\n", os.Args[2])
		fmt.Println("Usage: chimefind template <add|list|remove> ...")
		os.Exit(1)
	}
}

func handleTemplateAdd() {
	log := logger.GetLogger()

	args := os.Args[3:]
	var wavPath string
	var flagArgs []string
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && wavPath == "" {
			wavPath = arg
		} else {
			flagArgs = append(flagArgs, args[i:]...)
			break
		}
	}

	addCmd := flag.NewFlagSet("template add", flag.ExitOnError)
	label := addCmd.String("label", "", "Unique label for the template (required)")
	source := addCmd.String("source", "", "Where the clip came from (optional)")
	addCmd.Parse(flagArgs)

	if wavPath == "" || *label == "" {
		fmt.Println("Error: WAV file path and --label are required")
		fmt.Println("Usage: chimefind template add <clip.wav> --label <label> [--source <desc>]")
		os.Exit(1)
	}

	cfg := loadConfig()

	catalog, err := template.OpenCatalog(dbPath, assetDir())
	if err != nil {
		fmt.Printf("❌ Failed to open catalog: %v\n", err)
		log.Fatalf("Catalog open failed: %v", err)
	}
	defer catalog.Close()

	fmt.Println("🎵 Registering template clip...")
	id, err := catalog.Register(wavPath, *label, *source, cfg.SampleRate)
	if err != nil {
		fmt.Printf("❌ Failed to register template: %v\n", err)
		log.Fatalf("Register failed: %v", err)
	}

	fmt.Println("\n✅ Template registered!")
	fmt.Printf("   ID:    %s\n", id)
	fmt.Printf("   Label: %s\n", *label)
	log.Infof("Registered template %s (%s)", id, *label)
}

func handleTemplateList() {
	log := logger.GetLogger()

	catalog, err := template.OpenCatalog(dbPath, assetDir())
	if err != nil {
		fmt.Printf("❌ Failed to open catalog: %v\n", err)
		log.Fatalf("Catalog open failed: %v", err)
	}
	defer catalog.Close()

	assets, err := catalog.List()
	if err != nil {
		fmt.Printf("❌ Failed to list templates: %v\n", err)
		log.Fatalf("List failed: %v", err)
	}

	if len(assets) == 0 {
		fmt.Println("\n📭 No templates registered")
		return
	}

	fmt.Printf("\n📚 Found %d template(s):\n\n", len(assets))
	for i, a := range assets {
		fmt.Printf("%d. %q (ID: %s)\n", i+1, a.Label, a.ID)
		if a.SourceLabel != "" {
			fmt.Printf("   Source: %s\n", a.SourceLabel)
		}
		fmt.Printf("   Duration: %.2fs | Rate: %d Hz | RMS: %.3f | Added: %s\n",
			float64(a.DurationMs)/1000, a.SampleRate, a.RMS, humanize.Time(a.CreatedAt))
		fmt.Println()
	}
	log.Infof("Listed %d templates", len(assets))
}

func handleTemplateRemove() {
	log := logger.GetLogger()

	if len(os.Args) < 4 {
		fmt.Println("Usage: chimefind template remove <template_id>")
		os.Exit(1)
	}
	id := os.Args[3]

	catalog, err := template.OpenCatalog(dbPath, assetDir())
	if err != nil {
		fmt.Printf("❌ Failed to open catalog: %v\n", err)
		log.Fatalf("Catalog open failed: %v", err)
	}
	defer catalog.Close()

	if err := catalog.Remove(id); err != nil {
		fmt.Printf("❌ Failed to remove template: %v\n", err)
		log.Fatalf("Remove failed: %v", err)
	}

	fmt.Printf("\n✅ Removed template %s\n", id)
	log.Infof("Removed template %s", id)
}

func handleRuns() {
	log := logger.GetLogger()

	store, err := report.OpenStore(dbPath)
	if err != nil {
		fmt.Printf("❌ Failed to open report store: %v\n", err)
		log.Fatalf("Report store open failed: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns()
	if err != nil {
		fmt.Printf("❌ Failed to list runs: %v\n", err)
		log.Fatalf("ListRuns failed: %v", err)
	}

	if len(runs) == 0 {
		fmt.Println("\n📭 No recorded runs")
		return
	}

	fmt.Printf("\n📚 Found %d run(s):\n\n", len(runs))
	for i, r := range runs {
		fmt.Printf("%d. %s  (%s)\n", i+1, r.Source, humanize.Time(r.CreatedAt))
		fmt.Printf("   ID: %s | Events: %d | Took: %s\n",
			r.ID, r.EventCount, (time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond))

		events, err := store.EventsForRun(r.ID)
		if err != nil {
			log.Warnf("Failed loading events for run %s: %v", r.ID, err)
			continue
		}
		for _, ev := range events {
			fmt.Printf("   - %s  agreement=%d confidence=%s\n",
				formatTimestamp(ev.TimeSec), ev.Agreement, ev.Confidence)
		}
		fmt.Println()
	}
	log.Infof("Listed %d runs", len(runs))
}

func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func printUsage() {
	fmt.Println("chimefind - Chime Motif Detection CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Path to SQLite database (env: CHIMEFIND_DB_PATH, default: chimefind.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: CHIMEFIND_TEMP_DIR, default: /tmp)")
	fmt.Println("  --config <path>    YAML config file with detection parameters (env: CHIMEFIND_CONFIG)")
	fmt.Println("\nUsage:")
	fmt.Println("  chimefind [global-options] detect <audio_file> [--json <path>] [--no-save]")
	fmt.Println("  chimefind [global-options] fetch <video_url> [--out <dir>]")
	fmt.Println("  chimefind [global-options] template add <clip.wav> --label <label> [--source <desc>]")
	fmt.Println("  chimefind [global-options] template list")
	fmt.Println("  chimefind [global-options] template remove <template_id>")
	fmt.Println("  chimefind [global-options] runs")
	fmt.Println("\nExamples:")
	fmt.Println("  # Register a chime clip")
	fmt.Println("  chimefind template add chime.wav --label \"level-up\" --source \"mission 3 capture\"")
	fmt.Println()
	fmt.Println("  # Scan a soundtrack and write JSON for downstream tooling")
	fmt.Println("  chimefind detect soundtrack.wav --json events.json")
	fmt.Println()
	fmt.Println("  # Pull a soundtrack straight from a video URL")
	fmt.Println("  chimefind fetch \"https://youtube.com/watch?v=dQw4w9WgXcQ\" --out ./audio")
}
