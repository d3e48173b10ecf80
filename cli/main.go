// Command mcfs mounts camera recordings as virtual DNG sequences.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	mcfs "github.com/LeonardSander/motioncam-fs"
	"github.com/LeonardSander/motioncam-fs/cli/tui"
	"github.com/LeonardSander/motioncam-fs/data"
	"github.com/LeonardSander/motioncam-fs/fuse"
	"github.com/LeonardSander/motioncam-fs/log"
	"github.com/LeonardSander/motioncam-fs/mounts"
	"github.com/LeonardSander/motioncam-fs/registry"
)

func main() {
	app := &cli.App{
		Name:  "mcfs",
		Usage: "mount camera recordings as virtual DNG sequences",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
			&cli.StringFlag{Name: "log-file", Usage: "also log to a rotated file"},
			&cli.StringFlag{Name: "registry", Usage: "path of the persistent session registry"},
		},
		Commands: []*cli.Command{
			mountCommand(),
			infoCommand(),
			sessionsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "draft", Usage: "downscale for faster preview"},
		&cli.IntFlag{Name: "draft-scale", Value: 2, Usage: "draft downscale factor (2, 4, 8)"},
		&cli.BoolFlag{Name: "vignette-correction", Usage: "apply the lens shading map"},
		&cli.BoolFlag{Name: "vignette-only-color", Usage: "keep only the chromatic vignette component"},
		&cli.BoolFlag{Name: "normalize-shading", Usage: "normalize the shading map to max 1"},
		&cli.BoolFlag{Name: "debug-shading", Usage: "visualize the inverted shading map"},
		&cli.BoolFlag{Name: "normalize-exposure", Usage: "derive BaselineExposure from the scene exposure range"},
		&cli.BoolFlag{Name: "framerate-conversion", Usage: "remap to a constant frame rate"},
		&cli.StringFlag{Name: "cfr-target", Value: "Prefer Drop Frame", Usage: "CFR policy or literal rate"},
		&cli.StringFlag{Name: "crop", Usage: "centered crop as WxH"},
		&cli.StringFlag{Name: "cam-model", Usage: "camera model override (Blackmagic, Panasonic, Fujifilm, ...)"},
		&cli.StringFlag{Name: "levels", Value: "Dynamic", Usage: `level override: Dynamic, Static, "W/B" or "W/B1,B2,B3,B4"`},
		&cli.StringFlag{Name: "log-transform", Usage: `log curve: "Keep Input" or "Reduce by Nbit"`},
		&cli.StringFlag{Name: "exposure", Value: "0ev", Usage: `static "Nev" or keyframes "pos:value, ..."`},
		&cli.StringFlag{Name: "quad-bayer", Value: "Remosaic", Usage: "quad-Bayer handling"},
		&cli.StringFlag{Name: "cfa-phase", Value: "bggr", Usage: `remosaic phase or "Don't override CFA"`},
	}
}

func configFromFlags(c *cli.Context) data.RenderConfig {
	cfg := data.DefaultRenderConfig()

	var flags data.RenderFlags
	if c.Bool("draft") {
		flags = flags.Set(data.FlagDraft)
	}
	if c.Bool("vignette-correction") {
		flags = flags.Set(data.FlagVignetteCorrection)
	}
	if c.Bool("vignette-only-color") {
		flags = flags.Set(data.FlagVignetteOnlyColor)
	}
	if c.Bool("normalize-shading") {
		flags = flags.Set(data.FlagNormalizeShading)
	}
	if c.Bool("debug-shading") {
		flags = flags.Set(data.FlagDebugShading)
	}
	if c.Bool("normalize-exposure") {
		flags = flags.Set(data.FlagNormalizeExposure)
	}
	if c.Bool("framerate-conversion") {
		flags = flags.Set(data.FlagFramerateConversion)
	}
	if c.String("crop") != "" {
		flags = flags.Set(data.FlagCropping)
	}
	if c.String("cam-model") != "" {
		flags = flags.Set(data.FlagCameraModelOverride)
	}
	if c.String("log-transform") != "" {
		flags = flags.Set(data.FlagLogTransform)
	}
	if c.String("quad-bayer") == "Remosaic" {
		flags = flags.Set(data.FlagRemosaic)
	}

	cfg.Flags = flags
	cfg.DraftScale = c.Int("draft-scale")
	cfg.CFRTarget = c.String("cfr-target")
	cfg.CropTarget = c.String("crop")
	cfg.CameraModel = c.String("cam-model")
	cfg.Levels = c.String("levels")
	cfg.LogTransform = c.String("log-transform")
	cfg.ExposureCompensation = c.String("exposure")
	cfg.QuadBayer = c.String("quad-bayer")
	cfg.CFAPhase = c.String("cfa-phase")

	return cfg
}

func newLogger(c *cli.Context) *log.Logger {
	return log.NewLogger("mcfs", log.Parse(c.String("log-level")), c.String("log-file"), false)
}

func newManager(c *cli.Context, logger *log.Logger) (*mcfs.Manager, error) {
	opts := []mcfs.Option{mcfs.WithLogger(logger)}
	if path := c.String("registry"); path != "" {
		opts = append(opts, mcfs.WithRegistry(path))
	}
	return mcfs.NewManager(opts...)
}

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "expose a recording at a host directory",
		ArgsUsage: "<source> <mountpoint>",
		Flags: append(renderFlags(),
			&cli.BoolFlag{Name: "allow-other", Usage: "permit other users to read the mount"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: mcfs mount <source> <mountpoint>")
			}
			srcPath, mountpoint := c.Args().Get(0), c.Args().Get(1)

			logger := newLogger(c)
			manager, err := newManager(c, logger)
			if err != nil {
				return err
			}

			dir, err := mounts.New(c.Context, manager.Env(), srcPath, configFromFlags(c))
			if err != nil {
				return err
			}

			id, err := manager.Mount(dir, srcPath, mountpoint)
			if err != nil {
				return err
			}

			server, err := fuse.Mount(fuse.Options{
				Mountpoint: mountpoint,
				Directory:  dir,
				AllowOther: c.Bool("allow-other"),
				Logger:     logger,
			})
			if err != nil {
				manager.Unmount(id)
				return err
			}

			info, _ := manager.FileInfo(id)
			fmt.Printf("mounted %s at %s: %dx%d @ %.3f fps, %d frames (%s)\n",
				srcPath, mountpoint, info.Width, info.Height, info.FPS, info.TotalFrames, info.Runtime())

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			server.Unmount()
			manager.Unmount(id)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return manager.Shutdown(ctx)
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "print frame statistics for a recording without mounting",
		ArgsUsage: "<source>",
		Flags:     renderFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: mcfs info <source>")
			}

			logger := newLogger(c)
			manager, err := newManager(c, logger)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				manager.Shutdown(ctx)
			}()

			dir, err := mounts.New(c.Context, manager.Env(), c.Args().Get(0), configFromFlags(c))
			if err != nil {
				return err
			}
			defer dir.Close()

			info := dir.FileInfo()
			fmt.Printf("dimensions:  %dx%d\n", info.Width, info.Height)
			fmt.Printf("frame rate:  %.3f fps (median %.3f, average %.3f)\n", info.FPS, info.MedianFPS, info.AverageFPS)
			fmt.Printf("frames:      %d (%d dropped, %d duplicated)\n", info.TotalFrames, info.DroppedFrames, info.DuplicatedFrames)
			fmt.Printf("data type:   %s\n", info.DataType)
			fmt.Printf("levels:      %s\n", info.Levels)
			fmt.Printf("runtime:     %s\n", info.Runtime())
			return nil
		},
	}
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "browse recorded mount sessions",
		Action: func(c *cli.Context) error {
			path := c.String("registry")
			if path == "" {
				return fmt.Errorf("sessions requires --registry")
			}

			reg, err := registry.Open(path)
			if err != nil {
				return err
			}
			defer reg.Close()

			return tui.Run(reg)
		},
	}
}
