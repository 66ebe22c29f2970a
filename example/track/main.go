// Command track runs a feature tracker over recorded camera video and, for
// stereo rigs, refines the extrinsic calibration online from the tracked
// left/right correspondences.  The annotated frames can be viewed in a
// browser.
package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/swdee/go-stereotrack"
	"github.com/swdee/go-stereotrack/calib"
	"github.com/swdee/go-stereotrack/config"
	"github.com/swdee/go-stereotrack/logging"
	"github.com/swdee/go-stereotrack/preprocess"
	"github.com/swdee/go-stereotrack/render"
	"github.com/swdee/go-stereotrack/tracker"
	"github.com/swdee/go-stereotrack/vision"
	"github.com/swdee/go-stereotrack/vision/cvbackend"
	"github.com/swdee/go-stereotrack/vision/gobackend"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Demo holds the tracking pipeline and its video sources
type Demo struct {
	cfg     *config.Config
	backend vision.Backend
	tracker tracker.Tracker
	calib   *calib.Calibrator
	videos  []*gocv.VideoCapture
	// maps resample the fisheye images into the tracked views
	maps *fisheyeMaps
	// resizers downscale mono and stereo frames before tracking
	resizers []*preprocess.Resizer
	opts     Options
	stream   *Streamer
	logger   *zap.SugaredLogger
}

// Options are the command line settings of the demo
type Options struct {
	// Scale resizes mono and stereo frames before tracking, 1 keeps the
	// camera resolution
	Scale   float64
	ShowIDs bool
}

// fisheyeMaps holds the view lookups of the up and down fisheye cameras
type fisheyeMaps struct {
	upTop, downTop   *preprocess.ViewMap
	upSide, downSide []*preprocess.ViewMap
}

// NewBackend returns the vision backend named in the configuration
func NewBackend(cfg *config.Config) vision.Backend {
	if cfg.Backend == config.BackendGo {
		return gobackend.New(cfg.Seed)
	}
	return cvbackend.New(cfg.Seed)
}

// NewDemo builds the tracker and opens one video per camera
func NewDemo(cfg *config.Config, videoFiles []string, opts Options,
	logger *zap.SugaredLogger) (*Demo, error) {

	mode, err := cfg.TrackerMode()

	if err != nil {
		return nil, err
	}

	want := map[tracker.Mode]int{tracker.ModeMono: 1, tracker.ModeStereo: 2,
		tracker.ModeFisheye: 2}[mode]

	if len(videoFiles) != want {
		return nil, fmt.Errorf("%v mode wants %d videos, got %d", mode, want,
			len(videoFiles))
	}

	var resizers []*preprocess.Resizer

	if opts.Scale != 1 {
		cfg, resizers, err = cfg.Downscale(opts.Scale)

		if err != nil {
			return nil, err
		}

		k := cfg.Cameras[0].Intrinsic
		logger.Infow("tracking downscaled frames", "scale", opts.Scale,
			"width", k.Width, "height", k.Height)
	}

	d := &Demo{
		cfg:      cfg,
		backend:  NewBackend(cfg),
		resizers: resizers,
		opts:     opts,
		logger:   logger,
	}

	models, err := cfg.Models()

	if err != nil {
		return nil, err
	}

	d.tracker, err = tracker.New(mode, d.backend, models, cfg.TrackerParams(),
		logger.Named("tracker"))

	if err != nil {
		return nil, fmt.Errorf("error creating tracker: %w", err)
	}

	if cfg.Calibration.Enabled {
		r0, t0 := cfg.Prior()
		d.calib, err = calib.New(d.backend, r0, t0, cfg.Cameras[0].Intrinsic.Matrix(),
			cfg.CalibParams(), logger.Named("calib"))

		if err != nil {
			return nil, fmt.Errorf("error creating calibrator: %w", err)
		}
	}

	if mode == tracker.ModeFisheye {
		d.maps = newFisheyeMaps(cfg)
	}

	for _, file := range videoFiles {
		video, err := gocv.VideoCaptureFile(file)

		if err != nil {
			d.Close()
			return nil, fmt.Errorf("error opening video %s: %w", file, err)
		}

		d.videos = append(d.videos, video)
	}

	return d, nil
}

func newFisheyeMaps(cfg *config.Config) *fisheyeMaps {

	rig := cfg.Rig()
	top := cfg.Fisheye.Top
	side := cfg.Fisheye.Side

	m := &fisheyeMaps{
		upTop:   preprocess.NewViewMap(rig.UpTop, top.Width, top.Height, rig.Up),
		downTop: preprocess.NewViewMap(rig.DownTop, top.Width, top.Height, rig.Down),
	}

	for i := range rig.UpSide.Views {
		m.upSide = append(m.upSide, preprocess.NewViewMap(&rig.UpSide.Views[i],
			side.Width, side.Height, rig.Up))
		m.downSide = append(m.downSide, preprocess.NewViewMap(&rig.DownSide.Views[i],
			side.Width, side.Height, rig.Down))
	}

	return m
}

// Close releases the videos, the tracker and the backend
func (d *Demo) Close() error {

	var err error

	for _, v := range d.videos {
		err = multierr.Append(err, v.Close())
	}

	if d.tracker != nil {
		err = multierr.Append(err, d.tracker.Close())
	}

	return multierr.Append(err, d.backend.Close())
}

// readFrame reads the next frame of every video as gray images
func (d *Demo) readFrame(mats []gocv.Mat) ([]*image.Gray, bool, error) {

	grays := make([]*image.Gray, len(d.videos))

	for i, v := range d.videos {
		if ok := v.Read(&mats[i]); !ok {
			return nil, false, nil
		}

		g, err := preprocess.MatToGray(mats[i])

		if err != nil {
			return nil, false, fmt.Errorf("video %d: %w", i, err)
		}

		if d.resizers != nil {
			g = d.resizers[i].LetterBoxResize(g, color.Gray{})
		}

		grays[i] = g
	}

	return grays, true, nil
}

// views turns the camera images into the tracker images
func (d *Demo) views(grays []*image.Gray) ([]*image.Gray, error) {

	if d.maps == nil {
		return grays, nil
	}

	up, down := grays[0], grays[1]
	upSide := make([]*image.Gray, len(d.maps.upSide))
	downSide := make([]*image.Gray, len(d.maps.downSide))

	for i := range d.maps.upSide {
		upSide[i] = d.maps.upSide[i].Apply(up)
		downSide[i] = d.maps.downSide[i].Apply(down)
	}

	upStrip, err := preprocess.ConcatSide(upSide)

	if err != nil {
		return nil, err
	}

	downStrip, err := preprocess.ConcatSide(downSide)

	if err != nil {
		return nil, err
	}

	return []*image.Gray{d.maps.upTop.Apply(up), upStrip,
		d.maps.downTop.Apply(down), downStrip}, nil
}

// Run tracks every frame of the videos
func (d *Demo) Run() error {

	mats := make([]gocv.Mat, len(d.videos))

	for i := range mats {
		mats[i] = gocv.NewMat()
		defer mats[i].Close()
	}

	fps := d.videos[0].Get(gocv.VideoCaptureFPS)

	if fps <= 0 {
		fps = 30
	}

	interval := time.Duration(float64(time.Second) / fps)
	start := time.Now()

	for frameNum := 0; ; frameNum++ {

		grays, ok, err := d.readFrame(mats)

		if err != nil {
			return err
		}

		if !ok {
			d.logger.Infow("end of video", "frames", frameNum)
			return nil
		}

		imgs, err := d.views(grays)

		if err != nil {
			return err
		}

		ts := start.Add(time.Duration(frameNum) * interval)
		procStart := time.Now()

		frame, err := d.tracker.TrackFrame(ts, imgs...)

		if err != nil {
			return fmt.Errorf("frame %d: %w", frameNum, err)
		}

		trackTime := time.Since(procStart)

		if d.calib != nil && frameNum%d.cfg.Calibration.Interval == 0 {
			d.calibrate(frame)
		}

		d.logger.Debugw("tracked frame", "frame", frameNum, "features", len(frame),
			"duration", trackTime)

		if d.stream != nil {
			d.publish(imgs, frame, frameNum, trackTime)
		}
	}
}

// calibrate feeds the stereo correspondences of frame to the calibrator
func (d *Demo) calibrate(frame tracker.FeatureFrame) {

	_, a, b := tracker.StereoPairs(frame)

	ok, err := d.calib.Calibrate(a, b)

	switch {
	case errors.Is(err, calib.ErrInsufficientData):
		d.logger.Debugw("calibration waiting for data", "pairs", len(a),
			"buffered", d.calib.Buffered())
	case err != nil:
		d.logger.Warnw("calibration failed", "error", err)
	case ok:
		d.logger.Infow("calibration updated", "state", d.calib.State())
	}
}

// publish renders the first camera views and sends the result to the
// browser clients
func (d *Demo) publish(imgs []*image.Gray, frame tracker.FeatureFrame,
	frameNum int, trackTime time.Duration) {

	canvas, err := d.annotate(imgs, frame, frameNum, trackTime)

	if err != nil {
		d.logger.Warnw("error rendering frame", "error", err)
		return
	}

	defer canvas.Close()

	buf, err := gocv.IMEncode(".jpg", canvas)

	if err != nil {
		d.logger.Warnw("error encoding frame", "error", err)
		return
	}

	d.stream.Publish(buf.GetBytes())
	buf.Close()
}

// annotate draws features and trails of the views sharing the height of
// the first image, side by side
func (d *Demo) annotate(imgs []*image.Gray, frame tracker.FeatureFrame,
	frameNum int, trackTime time.Duration) (gocv.Mat, error) {

	views := d.tracker.Views()
	height := imgs[0].Bounds().Dy()

	canvas := gocv.NewMat()
	offsets := make([]image.Point, 0, len(imgs))
	width := 0

	for i, img := range imgs {
		if img == nil || img.Bounds().Dy() != height {
			offsets = append(offsets, image.Point{X: -1})
			continue
		}

		bgr, err := grayToBGR(img)

		if err != nil {
			canvas.Close()
			return gocv.Mat{}, fmt.Errorf("view %d: %w", i, err)
		}

		if canvas.Empty() {
			bgr.CopyTo(&canvas)
		} else {
			joined := render.SideBySide(canvas, bgr)
			canvas.Close()
			canvas = joined
		}

		bgr.Close()
		offsets = append(offsets, image.Pt(width, 0))
		width += img.Bounds().Dx()
	}

	font := render.DefaultFont()
	idFont := render.IDFont()
	style := render.DefaultFeatureStyle()
	style.ShowIDs = d.opts.ShowIDs
	trail := render.DefaultTrailStyle()

	for i, v := range views {
		if offsets[i].X < 0 {
			continue
		}

		render.Trail(&canvas, frame, v.Camera, d.tracker.Trail(), offsets[i], trail)
		render.Features(&canvas, v, offsets[i], idFont, style)
	}

	if d.calib != nil {
		render.Extrinsic(&canvas, d.calib.State(), d.calib.Estimate(),
			d.calib.Buffered(), font)
	} else {
		render.FrameSummary(&canvas, views, font)
	}

	font.Put(&canvas, fmt.Sprintf("Frame: %d, Tracking: %.2fms",
		frameNum, float32(trackTime)/float32(time.Millisecond)),
		image.Pt(4, canvas.Rows()-8), render.Pink)

	return canvas, nil
}

func grayToBGR(img *image.Gray) (gocv.Mat, error) {

	gray, err := gocv.ImageGrayToMatGray(img)

	if err != nil {
		return gocv.Mat{}, err
	}

	defer gray.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	return bgr, nil
}

func main() {

	app := &cli.App{
		Name:  "track",
		Usage: "track features over camera video and refine stereo calibration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Load rig configuration from `FILE`",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "video",
				Aliases:  []string{"v"},
				Usage:    "Video `FILE` per camera, left before right, up before down",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "HTTP address to stream annotated frames on, format address:port",
			},
			&cli.StringFlag{
				Name:  "platform",
				Usage: "Pin the frame loop to the fast cores of `SOC` [rk3588|rk3582|rk3576]",
			},
			&cli.Float64Flag{
				Name:  "scale",
				Value: 1,
				Usage: "Track mono and stereo frames resized by `FACTOR` in (0,1]",
			},
			&cli.BoolFlag{
				Name:  "show-ids",
				Usage: "Label streamed features with their id",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {

	cfg, err := config.Load(c.String("config"))

	if err != nil {
		return err
	}

	level := cfg.Log.Level

	if c.IsSet("log-level") {
		level = c.String("log-level")
	}

	logger, err := logging.NewLogger("track", level)

	if err != nil {
		return err
	}

	defer logger.Sync()

	if platform := c.String("platform"); platform != "" {
		release, err := stereotrack.PinFrameLoop(platform, stereotrack.FastCores)

		if err != nil {
			logger.Warnw("failed to set CPU affinity", "error", err)
		} else {
			defer release()
		}
	}

	demo, err := NewDemo(cfg, c.StringSlice("video"), Options{
		Scale:   c.Float64("scale"),
		ShowIDs: c.Bool("show-ids"),
	}, logger)

	if err != nil {
		return err
	}

	defer demo.Close()

	if addr := c.String("addr"); addr != "" {
		demo.stream = NewStreamer(logger.Named("stream"))
		http.Handle("/stream", demo.stream)

		go func() {
			logger.Infof("Open browser and view video at http://%s/stream", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Errorw("http server stopped", "error", err)
			}
		}()
	}

	return demo.Run()
}
