package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"polcube/pkg/archive"
	"polcube/pkg/averagemap"
	"polcube/pkg/channels"
	"polcube/pkg/config"
	"polcube/pkg/fits"
	"polcube/pkg/visualization"
)

const usage = `Usage: polcube <command> [flags]

Commands:
  average      build the noise weighted average map of the smoothed cube
  channels     predict the populated output channels of an observation
  init-config  write a default configuration file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "average":
		err = runAverage(args)
	case "channels":
		err = runChannels(args)
	case "init-config":
		err = runInitConfig(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "polcube: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every command reading a configuration file
type commonFlags struct {
	configFile string
	debug      bool
}

func newFlagSet(name string, common *commonFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.StringVarP(&common.configFile, "config", "c", "polcube.yaml", "Configuration file")
	fs.BoolVarP(&common.debug, "debug", "d", false, "Enable debug logging")
	return fs
}

// SetupLogger builds the process logger. debug overrides the configured level.
func SetupLogger(cfg *config.Config, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug || cfg.Logging.Debug {
		level = zapcore.DebugLevel
	}
	encoding := cfg.Logging.Encoding
	if encoding == "" {
		encoding = "console"
	}
	logger, logErr := zap.Config{
		Encoding:    encoding,
		Level:       zap.NewAtomicLevelAt(level),
		OutputPaths: []string{"stdout"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:  "message",
			LevelKey:    "level",
			EncodeLevel: zapcore.CapitalLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.ISO8601TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}.Build()
	if logErr != nil {
		log.Fatalf("Couldn't setup logger: %v", logErr)
	}
	return logger
}

func runAverage(args []string) error {
	var common commonFlags
	fs := newFlagSet("average", &common)
	fs.Parse(args)

	cfg, err := config.LoadConfig(common.configFile)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg, common.debug)
	defer logger.Sync()

	if !cfg.Input.SmoothBeam {
		logger.Info("Beam smoothing disabled, skipping average map")
		return nil
	}
	if err := cfg.CreateDirectories(); err != nil {
		return err
	}

	archiver, err := archive.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := averagemap.NewEngine(&averagemap.Params{
		InputCube:      cfg.InputCubePath(),
		OutputCube:     cfg.OutputCubePath(),
		StatisticsFile: cfg.StatisticsPath(),
	}, archiver, logger)
	if err := engine.Process(ctx); err != nil {
		logger.Error("Average map failed", zap.Error(err))
		return err
	}

	if cfg.Env.DirPreview != "" {
		if err := savePreviews(cfg, logger); err != nil {
			// quick-looks are optional, the average map is complete
			logger.Warn("Failed to save previews", zap.Error(err))
		}
	}
	return nil
}

func savePreviews(cfg *config.Config, logger *zap.Logger) error {
	cube, err := fits.Open(cfg.OutputCubePath(), fits.ReadOnly)
	if err != nil {
		return err
	}
	defer cube.Close()

	files, err := visualization.NewViewer(cube, cfg.Env.PreviewSize).SavePlanes(cfg.Env.DirPreview, cfg.Input.Basename)
	if err != nil {
		return err
	}
	logger.Info("Saved previews", zap.Strings("files", files))
	return nil
}

func runChannels(args []string) error {
	var common commonFlags
	var write bool
	fs := newFlagSet("channels", &common)
	fs.BoolVarP(&write, "write", "w", false, "Write the predicted channels artifact")
	fs.Parse(args)

	cfg, err := config.LoadConfig(common.configFile)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg, common.debug)
	defer logger.Sync()

	firstFreq, err := cfg.AnchorFrequency()
	if err != nil {
		return err
	}
	windows, err := cfg.FrequencyWindows()
	if err != nil {
		return err
	}
	spws, err := channels.LoadSpectralWindows(cfg.Input.SpwFile)
	if err != nil {
		return err
	}

	mapper := channels.NewMapper(firstFreq, cfg.Input.OutputChanBandwidth, windows, logger)
	_, populated, err := mapper.Predict(spws)
	if err != nil {
		return err
	}

	numbers := make([]string, len(populated))
	for i, n := range populated {
		numbers[i] = fmt.Sprint(n)
	}
	fmt.Println(strings.Join(numbers, " "))

	if write {
		path := cfg.PredictedChannelsPath()
		if err := channels.WritePredictedChannels(path, populated); err != nil {
			return err
		}
		logger.Info("Wrote predicted channels", zap.String("path", path))
	}
	return nil
}

func runInitConfig(args []string) error {
	var common commonFlags
	fs := newFlagSet("init-config", &common)
	fs.Parse(args)

	if _, err := os.Stat(common.configFile); err == nil {
		return fmt.Errorf("%s already exists", common.configFile)
	}
	if err := config.CreateDefaultConfigFile(common.configFile); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", common.configFile)
	return nil
}
