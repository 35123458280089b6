// Package main is the motionwatch command: a motion detector for cameras,
// streams, video files, snapshot endpoints and image directories.
package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig          = "config"
	flagSource          = "source"
	flagURL             = "url"
	flagDevice          = "device"
	flagNoWindow        = "no-window"
	flagLogLevel        = "log-level"
	flagWatch           = "watch"
	flagProfileInterval = "profile-interval"
	flagDatabase        = "db"
	flagSince           = "since"
	flagLimit           = "limit"
	flagPrune           = "prune"
)

// The preview window must be driven from the main OS thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "motionwatch:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load configuration from `FILE`",
	}

	return &cli.App{
		Name:  "motionwatch",
		Usage: "detect and report motion in a video feed",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "watch a source and report verified motion",
				UsageText: "motionwatch run [-c FILE] [--source KIND --url URL]",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  flagSource,
						Usage: "override camera.source: device, stream, file, snapshot or directory",
					},
					&cli.StringFlag{
						Name:  flagURL,
						Usage: "override camera.url (stream/snapshot URL, video file or image directory)",
					},
					&cli.IntFlag{
						Name:  flagDevice,
						Usage: "override camera.index",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:  flagNoWindow,
						Usage: "disable the preview window",
					},
					&cli.StringFlag{
						Name:  flagLogLevel,
						Usage: "override logging.level",
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "reload motion settings when the config file changes",
						Value: true,
					},
					&cli.DurationFlag{
						Name:  flagProfileInterval,
						Usage: "log stage timings every `INTERVAL`, 0 disables",
						Value: time.Minute,
					},
				},
				Action: runAction,
			},
			{
				Name:  "config",
				Usage: "inspect configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "defaults",
						Usage:  "print the default configuration as YAML",
						Action: configDefaultsAction,
					},
					{
						Name:      "validate",
						Usage:     "validate a configuration file",
						ArgsUsage: "FILE",
						Action:    configValidateAction,
					},
				},
			},
			{
				Name:  "events",
				Usage: "list recorded detection events",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  flagDatabase,
						Usage: "event database `PATH`, defaults to output.database",
					},
					&cli.DurationFlag{
						Name:  flagSince,
						Usage: "only events newer than `AGE`",
						Value: 24 * time.Hour,
					},
					&cli.IntFlag{
						Name:  flagLimit,
						Usage: "maximum number of events",
						Value: 20,
					},
					&cli.DurationFlag{
						Name:  flagPrune,
						Usage: "delete events older than `AGE` before listing",
					},
				},
				Action: eventsAction,
			},
		},
	}
}
