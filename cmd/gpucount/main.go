// Command gpucount counts the subpixels of an image at or above a threshold
// on the GPU and on the CPU, and prints how long each phase took.
//
// Usage:
//
//	gpucount [flags] <image>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gpucount"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gpucount", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		threshold = fs.Int("threshold", 254, "count subpixels with value >= `T` (0-255)")
		wgX       = fs.Int("wg-x", 16, "workgroup width")
		wgY       = fs.Int("wg-y", 16, "workgroup height")
		backend   = fs.String("backend", "vulkan", "graphics backend: vulkan or noop")
		reset     = fs.Bool("reset", false, "zero the counter before the second pass")
		flip      = fs.Bool("flip", true, "store image rows bottom to top")
		timeout   = fs.Duration("timeout", 30*time.Second, "GPU fence wait timeout")
		verbose   = fs.Bool("v", false, "verbose logging")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Specify image as the command line parameter")
		fmt.Fprintln(stderr, "usage: gpucount [flags] <image>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return gpucount.ExitOK
		}
		return gpucount.ExitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return gpucount.ExitUsage
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	gpucount.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	report, err := gpucount.Run(fs.Arg(0),
		gpucount.WithThreshold(*threshold),
		gpucount.WithWorkgroup(*wgX, *wgY),
		gpucount.WithBackend(*backend),
		gpucount.WithResetBetweenPasses(*reset),
		gpucount.WithFlipVertical(*flip),
		gpucount.WithFenceTimeout(*timeout),
	)
	if err != nil {
		fmt.Fprintf(stderr, "gpucount: %v\n", err)
		return gpucount.ExitCode(err)
	}
	if _, err := report.WriteTo(stdout); err != nil {
		fmt.Fprintf(stderr, "gpucount: write report: %v\n", err)
		return gpucount.ExitRuntime
	}
	return gpucount.ExitOK
}
