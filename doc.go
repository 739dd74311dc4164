// Package gpucount counts bright subpixels of an image twice, once with a
// GPU compute kernel and once with a serial CPU scan, and times each phase.
//
// # Overview
//
// A subpixel is one color channel (red, green or blue) of one pixel. Given
// a threshold T in [0, 255], gpucount counts the subpixels whose value is at
// or above T. The GPU kernel compares normalized floats (value/255 against
// T/255); the CPU compares bytes. The two counts agree except, at most, on
// subpixels whose value is exactly T.
//
// # Quick Start
//
//	report, err := gpucount.Run("photo.png", gpucount.WithThreshold(200))
//	if err != nil {
//	    os.Exit(gpucount.ExitCode(err))
//	}
//	report.WriteTo(os.Stdout)
//
// # Phases
//
// Run opens a headless compute device, builds the kernel for the configured
// threshold and workgroup size, uploads the image, allocates the counter
// buffer, then runs dispatch+readback twice so cold and warm passes can be
// compared. The counter is not reset between passes unless
// WithResetBetweenPasses is set, so by default the second readback holds
// the sum of both passes. The CPU pass runs last over the same bytes.
//
// # Errors
//
// Every failure is fatal. Errors are one of ArgumentError,
// ContextInitError, DecodeError, CompileError, LinkError or RuntimeError,
// and ExitCode maps each to the process exit code of the command line tool.
//
// # Logging
//
// gpucount is silent by default. Use SetLogger to receive diagnostics from
// the package and its GPU layer.
package gpucount
