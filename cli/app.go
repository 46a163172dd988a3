// Package cli contains all business logic needed by the odometry command.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	runFlagOut       = "out"
	runFlagFormat    = "format"
	runFlagMapOut    = "map-out"
	runFlagMapFormat = "map-format"

	schemaFlagMode = "mode"

	formatKITTI = "kitti"
	formatTUM   = "tum"

	mapFormatASCII  = "ascii"
	mapFormatBinary = "binary"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "odometry",
		Usage:           "estimate the motion of a LiDAR from a sequence of sweeps",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "register a sequence of pcd files and print the trajectory",
				UsageText: "odometry [global options] run [options] <pcd file or directory>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  runFlagOut,
						Usage: "write the trajectory to `FILE` instead of stdout",
					},
					&cli.StringFlag{
						Name:  runFlagFormat,
						Value: formatKITTI,
						Usage: fmt.Sprintf("trajectory format, one of %q or %q", formatKITTI, formatTUM),
					},
					&cli.StringFlag{
						Name:  runFlagMapOut,
						Usage: "write the final local map to `FILE` as pcd",
					},
					&cli.StringFlag{
						Name:  runFlagMapFormat,
						Value: mapFormatBinary,
						Usage: fmt.Sprintf("pcd encoding of the map, one of %q or %q", mapFormatASCII, mapFormatBinary),
					},
				},
				Action: RunAction,
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  schemaFlagMode,
						Usage: "print the attribute schema of one strategy instead, e.g. local_map.kdtree",
					},
				},
				Action: SchemaAction,
			},
			{
				Name:   "version",
				Usage:  "print version info for this program",
				Action: VersionAction,
			},
		},
	}
}
