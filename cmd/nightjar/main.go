/*
Command nightjar reconciles recorded detector output with a multi object
tracker and draws each object's trajectory over the video.

Annotate a video file and export the detections

	nightjar -i birds.mp4 -d birds.jsonl -o annotated.mp4 -j birds.json

Serve the annotated video as MJPEG with detections over a WebSocket

	nightjar -m stream -i birds.mp4 -d birds.jsonl -a localhost:8080
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	nightjar "github.com/swdee/go-nightjar"
	"github.com/swdee/go-nightjar/capture"
	"github.com/swdee/go-nightjar/detector"
	"github.com/swdee/go-nightjar/export"
	"github.com/swdee/go-nightjar/server"
	"github.com/swdee/go-nightjar/store"
	"github.com/swdee/go-nightjar/tracker"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	mode := flag.String("m", "video", "Run mode [video|stream]")
	configFile := flag.String("c", "", "JSON configuration file, defaults are used when not set")
	labelFile := flag.String("l", "", "Text file containing model labels, overrides the configuration")
	input := flag.String("i", "", "Video file, stream URL or camera device number")
	detFile := flag.String("d", "", "JSON lines file of detector output, one line per frame")
	outFile := flag.String("o", "", "Annotated video output file (video mode)")
	jsonFile := flag.String("j", "", "Per frame detections JSON output file (video mode)")
	plotFile := flag.String("p", "", "Track trail plot output file, png or svg (video mode)")
	storeFile := flag.String("s", "", "SQLite database to record sessions to")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port (stream mode)")
	poolSize := flag.Int("n", 1, "Number of concurrent streams (stream mode)")
	fps := flag.Int("f", 0, "Stream FPS limit, 0 streams as fast as frames are processed (stream mode)")

	flag.Parse()

	if *input == "" || *detFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg := nightjar.DefaultConfig()

	if *configFile != "" {
		var err error
		cfg, err = nightjar.LoadConfig(*configFile)

		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	}

	if *labelFile != "" {
		cfg.LabelsFile = *labelFile
	}

	if *storeFile != "" {
		cfg.StorePath = *storeFile
	}

	var labels []string

	if cfg.LabelsFile != "" {
		var err error
		labels, err = nightjar.LoadLabels(cfg.LabelsFile)

		if err != nil {
			log.Fatalf("Error loading labels: %v", err)
		}
	}

	var db *store.Store

	if cfg.StorePath != "" {
		var err error
		db, err = store.Open(cfg.StorePath)

		if err != nil {
			log.Fatalf("Error opening store: %v", err)
		}

		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error

	switch strings.ToLower(*mode) {
	case "video":
		err = runVideo(ctx, cfg, labels, db, videoFiles{
			input:  *input,
			dets:   *detFile,
			output: *outFile,
			json:   *jsonFile,
			plot:   *plotFile,
		})

	case "stream":
		err = runStream(cfg, labels, db, *input, *detFile, *httpAddr, *poolSize, *fps)

	default:
		err = fmt.Errorf("unknown run mode %q", *mode)
	}

	if err != nil {
		// deferred closes do not run after log.Fatal
		stop()
		if db != nil {
			db.Close()
		}
		log.Fatalf("Error: %v", err)
	}
}

// sessionOptions returns the options shared by every session
func sessionOptions(db *store.Store) []nightjar.SessionOption {

	if db == nil {
		return nil
	}

	return []nightjar.SessionOption{nightjar.WithSink(db)}
}

// videoFiles are the input and output files of the video mode
type videoFiles struct {
	input  string
	dets   string
	output string
	json   string
	plot   string
}

// runVideo processes every frame of the input, writing the annotated video,
// the JSON export and the trail plot when requested
func runVideo(ctx context.Context, cfg nightjar.Config, labels []string,
	db *store.Store, files videoFiles) error {

	sess, err := nightjar.NewSession(cfg, labels, sessionOptions(db)...)

	if err != nil {
		return err
	}

	src, err := capture.Open(files.input)

	if err != nil {
		return err
	}

	defer src.Close()

	replay, err := detector.OpenReplay(files.dets)

	if err != nil {
		return err
	}

	defer replay.Close()

	width, height := src.Size()

	var writer *gocv.VideoWriter

	if files.output != "" {
		writer, err = gocv.VideoWriterFile(files.output, "mp4v", src.FPS(),
			width, height, true)

		if err != nil {
			return fmt.Errorf("error creating video writer: %w", err)
		}

		defer writer.Close()
	}

	var jw *export.JSONFile

	if files.json != "" {
		jw, err = export.CreateJSON(files.json)

		if err != nil {
			return err
		}

		// releases the file on early returns, the error is checked below
		defer jw.Close()
	}

	if err := sess.Start(ctx, src.Name()); err != nil {
		return err
	}

	img := gocv.NewMat()
	defer img.Close()

	start := time.Now()
	frames := 0

	// report statistics about once a second of video
	statsEvery := max(1, int(src.FPS()))
	statsStart := start

	for ctx.Err() == nil {

		if err := src.Read(&img); err != nil {
			if !errors.Is(err, capture.ErrEndOfStream) {
				log.Printf("Error reading frame: %v", err)
			}
			break
		}

		raws, err := replay.Detect(ctx, sess.FrameNum()+1, img)

		if err != nil {
			if errors.Is(err, detector.ErrReplayExhausted) {
				log.Printf("Detections ran out at frame %d", sess.FrameNum()+1)
				break
			}

			log.Printf("Error reading detections: %v", err)
		}

		res, err := sess.ProcessFrame(ctx, nightjar.Frame{
			Width:  img.Cols(),
			Height: img.Rows(),
			Raws:   raws,
		})

		if err != nil {
			break
		}

		frames++

		if frames%statsEvery == 0 {
			now := time.Now()
			log.Printf("Frame %d: %.1f FPS, objects %s", res.FrameNum,
				float64(statsEvery)/now.Sub(statsStart).Seconds(),
				formatCounts(res.ClassCounts))
			statsStart = now
		}

		if jw != nil {
			if err := jw.WriteFrame(res.Detections); err != nil {
				return err
			}
		}

		if writer != nil {
			if err := sess.Render(&img, res); err != nil {
				log.Printf("Error rendering frame %d: %v", res.FrameNum, err)
			}

			if err := writer.Write(img); err != nil {
				return fmt.Errorf("error writing frame %d: %w", res.FrameNum, err)
			}
		}
	}

	if err := sess.End(context.Background()); err != nil {
		log.Printf("Error ending session: %v", err)
	}

	if jw != nil {
		if err := jw.Close(); err != nil {
			return err
		}

		log.Printf("Saved %d frames of detections to %s", jw.Frames(), files.json)
	}

	elapsed := time.Since(start)
	log.Printf("Processed %d frames in %s (%.1f FPS)", frames, elapsed,
		float64(frames)/elapsed.Seconds())

	if files.plot != "" {
		histories := sess.Histories()

		// the store holds the full path rather than the last few points
		if db != nil {
			histories, err = storedHistories(db, sess.ID())

			if err != nil {
				return err
			}
		}

		err := export.PlotTrails(histories, width, height, files.plot)

		if errors.Is(err, export.ErrNoTrails) {
			log.Printf("No trails to plot")
		} else if err != nil {
			return err
		} else {
			log.Printf("Saved trail plot to %s", filepath.Clean(files.plot))
		}
	}

	return nil
}

// formatCounts renders per class object counts ordered by class name
func formatCounts(counts map[string]int) string {

	if len(counts) == 0 {
		return "none"
	}

	names := make([]string, 0, len(counts))

	for name := range counts {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, len(names))

	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
	}

	return strings.Join(parts, " ")
}

// storedHistories loads the full path of every track recorded for a session
func storedHistories(db *store.Store, id uuid.UUID) (map[int][]tracker.Point, error) {

	ctx := context.Background()

	ids, err := db.TrackIDs(ctx, id)

	if err != nil {
		return nil, err
	}

	histories := make(map[int][]tracker.Point, len(ids))

	for _, trackID := range ids {
		path, err := db.TrackPath(ctx, id, trackID)

		if err != nil {
			return nil, err
		}

		histories[trackID] = path
	}

	return histories, nil
}

// runStream serves the annotated video to every connecting client
func runStream(cfg nightjar.Config, labels []string, db *store.Store, input,
	detFile, addr string, poolSize, fps int) error {

	pool, err := nightjar.NewPool(poolSize, func() (*nightjar.Session, error) {
		return nightjar.NewSession(cfg, labels, sessionOptions(db)...)
	})

	if err != nil {
		return err
	}

	defer pool.Close()

	var interval time.Duration

	if fps > 0 {
		interval = time.Duration(float64(time.Second) / float64(fps))
	}

	srv, err := server.New(server.Config{
		Pool: pool,
		OpenSource: func() (server.FrameSource, error) {
			return capture.Open(input)
		},
		NewDetector: func() (detector.Detector, error) {
			return detector.OpenReplay(detFile)
		},
		FrameInterval: interval,
		JPEGQuality:   80,
	})

	if err != nil {
		return err
	}

	log.Printf("Open browser and view video at http://%s/stream", addr)
	log.Printf("Detections are published on ws://%s/detections", addr)

	return srv.ListenAndServe(addr)
}
