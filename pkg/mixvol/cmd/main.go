package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/MixyLabs/mixvol/pkg/mixvol"
	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

const (
	instanceMutexName = "mixvol"
	levelUnchanged    = -1
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose bool

	target string
	level  int
	mute   string
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging controller input)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")

	flag.StringVar(&target, "target", "", "adjust \"master\" or a process's session once and exit instead of running the daemon")
	flag.IntVar(&level, "level", levelUnchanged, "with -target: level to set, 0-100")
	flag.StringVar(&mute, "mute", "", "with -target: true or false")

	flag.Parse()
}

func main() {
	logger, err := mixvol.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	if verbose {
		named.Debug("Verbose flag provided, all log messages will be shown")
	}

	if target != "" {
		if err := runOnce(logger); err != nil {
			named.Errorw("One-shot adjustment failed", "target", target, "error", err)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		return
	}

	if err := util.CreateMutex(instanceMutexName); err != nil {
		named.Fatalw("Refusing to start", "error", err)
	}

	d, err := mixvol.NewMixVol(logger, verbose)
	if err != nil {
		named.Fatalw("Failed to create mixvol object", "error", err)
	}

	if buildType != "" && (versionTag != "" || gitCommit != "") {
		identifier := gitCommit
		if versionTag != "" {
			identifier = versionTag
		}

		versionString := fmt.Sprintf("Version %s-%s", buildType, identifier)
		d.SetVersion(versionString)
	}

	if err = d.Initialize(); err != nil {
		named.Fatalw("Failed to initialize mixvol", "error", err)
	}
}

func runOnce(logger *zap.SugaredLogger) error {
	var levelArg *int
	if level != levelUnchanged {
		levelArg = &level
	}

	var muteArg *bool
	if mute != "" {
		parsed, err := strconv.ParseBool(mute)
		if err != nil {
			return fmt.Errorf("parse -mute: %w", err)
		}

		muteArg = &parsed
	}

	audio, err := mixvol.OpenAudio(logger)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer audio.Release()

	status, err := mixvol.Adjust(audio, target, levelArg, muteArg)
	if err != nil {
		return err
	}

	fmt.Println(status)

	return nil
}
