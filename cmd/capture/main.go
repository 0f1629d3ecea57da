// Command capture runs the sizing pipeline against a local camera and logs
// every outcome. SIGUSR1 toggles between the front and back camera.
package main

import (
	"MaskFit/internal/config"
	"MaskFit/internal/entity"
	"MaskFit/pkg/capture"
	"MaskFit/pkg/landmark"
	"MaskFit/pkg/log"
	"MaskFit/pkg/measure"
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type options struct {
	cascadeDir   string
	profile      string
	profilesFile string
	frontID      string
	backID       string
	width        int
	height       int
	once         bool
}

// loadOptions reads .env files before the flags are defined so their values
// become the flag defaults.
func loadOptions(args []string, envFiles ...string) (options, error) {
	_ = godotenv.Load(envFiles...)

	var opts options
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	fs.StringVar(&opts.cascadeDir, "cascades", os.Getenv("PIGO_CASCADE_DIR"), "directory holding the facefinder and puploc cascades")
	fs.StringVar(&opts.profile, "profile", measure.ProfilePigoWidth, "measurement profile")
	fs.StringVar(&opts.profilesFile, "profiles", os.Getenv("MEASUREMENT_PROFILES_FILE"), "optional JSON file with extra profiles")
	fs.StringVar(&opts.frontID, "front", os.Getenv("CAMERA_FRONT_ID"), "device id of the front camera")
	fs.StringVar(&opts.backID, "back", os.Getenv("CAMERA_BACK_ID"), "device id of the back camera")
	fs.IntVar(&opts.width, "width", 640, "requested frame width")
	fs.IntVar(&opts.height, "height", 480, "requested frame height")
	fs.BoolVar(&opts.once, "once", false, "measure a single frame and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := loadOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	} else if err != nil {
		os.Exit(2)
	}

	logger := log.NewLogger()

	validate := config.NewValidator()
	specs := measure.Defaults()
	if opts.profilesFile != "" {
		extra, err := measure.LoadFile(validate, opts.profilesFile)
		if err != nil {
			logger.Fatalf("Failed to load profiles: %v", err)
		}
		specs = append(specs, extra...)
	}
	registry, err := measure.NewRegistry(validate, opts.profile, specs...)
	if err != nil {
		logger.Fatalf("Invalid profile setup: %v", err)
	}
	spec, _ := registry.Get(opts.profile)

	source, err := landmark.NewPigoSource(opts.cascadeDir, landmark.DefaultOptions())
	if err != nil {
		logger.Fatalf("Failed to load pigo cascades: %v", err)
	}
	defer source.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := capture.NewSession(capture.NewMediaDevicesCamera(opts.frontID, opts.backID), capture.Constraints{
		Facing: entity.FacingFront,
		Width:  opts.width,
		Height: opts.height,
	}, logger)
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		logger.Warnf("Camera not ready: %v", err)
	}

	pipeline := capture.NewPipeline(session, source, func() measure.Spec { return spec }, logOutcome(logger), logger)

	if opts.once {
		logOutcome(logger)(pipeline.CaptureOnce(ctx))
		return
	}

	go toggleOnSignal(ctx, session, logger)

	if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Pipeline stopped: %v", err)
	}
}

func toggleOnSignal(ctx context.Context, session *capture.Session, logger *logrus.Logger) {
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-toggle:
			facing, err := session.Toggle(ctx)
			if err != nil {
				logger.Warnf("Camera toggle to %s failed: %v", facing, err)
				continue
			}
			logger.Infof("Switched to %s camera", facing)
		}
	}
}

func logOutcome(logger *logrus.Logger) capture.Sink {
	return func(out entity.Outcome) {
		fields := logrus.Fields{
			"status":  out.Status,
			"profile": out.Profile,
			"label":   out.Label.String(),
		}
		if out.EstimateMM != nil {
			fields["estimate_mm"] = *out.EstimateMM
		}
		logger.WithFields(fields).Info(out.Message)
	}
}
