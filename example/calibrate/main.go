// Command calibrate refines the extrinsic transform of a stereo camera pair
// from ORB matches between left and right frames of recorded video and
// writes the final estimate as YAML.
package main

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/swdee/go-stereotrack/calib"
	"github.com/swdee/go-stereotrack/config"
	"github.com/swdee/go-stereotrack/filter"
	"github.com/swdee/go-stereotrack/logging"
	"github.com/swdee/go-stereotrack/preprocess"
	"github.com/swdee/go-stereotrack/render"
	"github.com/swdee/go-stereotrack/vision"
	"github.com/swdee/go-stereotrack/vision/cvbackend"
	"github.com/swdee/go-stereotrack/vision/gobackend"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

// Result is the calibration written to the output file
type Result struct {
	State string `yaml:"state"`
	// Rotation is roll, pitch and yaw in degrees
	Rotation    [3]float64 `yaml:"rotation"`
	Translation [3]float64 `yaml:"translation"`
	Matrix      []float64  `yaml:"rotation_matrix,flow"`
	Pairs       int        `yaml:"pairs"`
	Buffered    int        `yaml:"buffered"`
}

func newResult(c *calib.Calibrator, pairs int) Result {

	est := c.Estimate()
	euler := est.EulerDegrees()

	return Result{
		State:       c.State().String(),
		Rotation:    [3]float64{euler.X, euler.Y, euler.Z},
		Translation: [3]float64{est.Translation.X, est.Translation.Y, est.Translation.Z},
		Matrix:      append([]float64(nil), est.Rotation.RawMatrix().Data...),
		Pairs:       pairs,
		Buffered:    c.Buffered(),
	}
}

func newBackend(cfg *config.Config) vision.Backend {
	if cfg.Backend == config.BackendGo {
		return gobackend.New(cfg.Seed)
	}
	return cvbackend.New(cfg.Seed)
}

func main() {

	app := &cli.App{
		Name:  "calibrate",
		Usage: "refine stereo extrinsics from left and right video",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Load rig configuration from `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "left",
				Aliases:  []string{"l"},
				Usage:    "Left camera video `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "right",
				Aliases:  []string{"r"},
				Usage:    "Right camera video `FILE`",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "every",
				Value: 15,
				Usage: "Calibrate on every `N`th frame pair",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the estimate to `FILE`, stdout when empty",
			},
			&cli.StringFlag{
				Name:  "matches",
				Usage: "Write match images of every calibration pass to `DIR`",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) (err error) {

	cfg, err := config.Load(c.String("config"))

	if err != nil {
		return err
	}

	if len(cfg.Cameras) == 0 {
		return errors.New("configuration has no cameras")
	}

	logger, err := logging.NewLogger("calibrate", cfg.Log.Level)

	if err != nil {
		return err
	}

	defer logger.Sync()

	backend := newBackend(cfg)
	defer func() { err = multierr.Append(err, backend.Close()) }()

	r0, t0 := cfg.Prior()
	cal, err := calib.New(backend, r0, t0, cfg.Cameras[0].Intrinsic.Matrix(),
		cfg.CalibParams(), logger.Named("calib"))

	if err != nil {
		return err
	}

	left, err := gocv.VideoCaptureFile(c.String("left"))

	if err != nil {
		return fmt.Errorf("error opening left video: %w", err)
	}

	defer left.Close()

	right, err := gocv.VideoCaptureFile(c.String("right"))

	if err != nil {
		return fmt.Errorf("error opening right video: %w", err)
	}

	defer right.Close()

	pairs, err := calibrateVideo(cal, left, right, c.Int("every"),
		c.String("matches"), logger)

	if err != nil {
		return err
	}

	out, err := yaml.Marshal(newResult(cal, pairs))

	if err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	if path := c.String("out"); path != "" {
		return os.WriteFile(path, out, 0o644)
	}

	_, err = os.Stdout.Write(out)

	return err
}

// calibrateVideo runs a calibration pass on every nth frame pair and
// returns the number of passes
func calibrateVideo(cal *calib.Calibrator, left, right *gocv.VideoCapture,
	every int, matchDir string, logger *zap.SugaredLogger) (int, error) {

	if every < 1 {
		every = 1
	}

	lMat, rMat := gocv.NewMat(), gocv.NewMat()
	defer lMat.Close()
	defer rMat.Close()

	passes := 0

	for frameNum := 0; ; frameNum++ {

		if !left.Read(&lMat) || !right.Read(&rMat) {
			return passes, nil
		}

		if frameNum%every != 0 {
			continue
		}

		lImg, err := preprocess.MatToGray(lMat)

		if err != nil {
			return passes, fmt.Errorf("left frame %d: %w", frameNum, err)
		}

		rImg, err := preprocess.MatToGray(rMat)

		if err != nil {
			return passes, fmt.Errorf("right frame %d: %w", frameNum, err)
		}

		passes++

		cs, err := cal.FindCorrespondences(lImg, rImg)

		if err != nil {
			// a bad pair fails only its own pass
			logger.Warnw("error matching frame pair", "frame", frameNum, "error", err)
			continue
		}

		if matchDir != "" {
			writeMatches(filepath.Join(matchDir, fmt.Sprintf("matches_%06d.jpg", frameNum)),
				lMat, rMat, cs, lImg.Bounds(), logger)
		}

		a, b := filter.Points(cs)
		ok, err := cal.Calibrate(a, b)

		switch {
		case errors.Is(err, calib.ErrInsufficientData):
			logger.Debugw("waiting for correspondences", "frame", frameNum,
				"matches", len(cs), "buffered", cal.Buffered())
		case err != nil:
			return passes, fmt.Errorf("frame %d: %w", frameNum, err)
		case ok:
			euler := cal.Estimate().EulerDegrees()
			logger.Infow("estimate accepted", "frame", frameNum, "roll", euler.X,
				"pitch", euler.Y, "yaw", euler.Z)
		}
	}
}

// writeMatches saves the left and right frames side by side with the
// filtered correspondences drawn between them
func writeMatches(path string, lMat, rMat gocv.Mat, cs []filter.Correspondence,
	bounds image.Rectangle, logger *zap.SugaredLogger) {

	canvas := render.SideBySide(lMat, rMat)
	defer canvas.Close()

	render.Matches(&canvas, cs, bounds.Dx(), 1)

	if ok := gocv.IMWrite(path, canvas); !ok {
		logger.Warnw("error writing match image", "path", path)
	}
}
