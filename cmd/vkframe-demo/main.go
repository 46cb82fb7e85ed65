// Command vkframe-demo opens a window and drives it with the vkframe frame
// loop. Without shaders it shows the clear color; with -vert and -frag it
// draws a spinning triangle.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/renderer"
	"github.com/andewx/vkframe/vulkan"
)

func init() {
	// glfw and the Vulkan surface calls must stay on the main thread.
	runtime.LockOSThread()
}

type options struct {
	config string
	vert   string
	frag   string
	debug  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "", "path to a YAML config file")
	flag.StringVar(&opts.vert, "vert", "", "vertex shader (SPIR-V)")
	flag.StringVar(&opts.frag, "frag", "", "fragment shader (SPIR-V)")
	flag.BoolVar(&opts.debug, "debug", false, "enable validation layers and debug reports")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "vkframe-demo: %+v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := vkframe.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = vkframe.LoadConfig(opts.config); err != nil {
			return err
		}
	}
	log := vkframe.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	rend, err := newRenderer(opts)
	if err != nil {
		return err
	}

	win, err := newWindow(cfg.Surface.Width, cfg.Surface.Height, "vkframe")
	if err != nil {
		return err
	}
	defer win.Destroy()
	win.debug = opts.debug

	platform, err := vulkan.NewPlatform(win, log)
	if err != nil {
		return err
	}
	defer platform.Destroy()

	driver, err := vkframe.NewDriver(platform.Device(), win, platform.Surface(), platform.Queues(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Shutdown(); err != nil {
			log.Error("shutdown failed", "err", err)
		}
	}()
	driver.AddRenderer(rend)
	win.OnResize(driver.Resize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("running", "gpu", platform.GPUName(), "renderer", fmt.Sprintf("%T", rend))
	return driver.Run(ctx, win.Poll)
}

func newRenderer(opts options) (vkframe.Renderer, error) {
	if opts.vert == "" && opts.frag == "" {
		return renderer.Clear{}, nil
	}
	if opts.vert == "" || opts.frag == "" {
		return nil, errors.New("-vert and -frag must be given together")
	}
	vert, err := readSPIRV(opts.vert)
	if err != nil {
		return nil, err
	}
	frag, err := readSPIRV(opts.frag)
	if err != nil {
		return nil, err
	}
	return renderer.NewTriangle(vert, frag), nil
}

// readSPIRV loads a shader and checks that it is SPIR-V.
func readSPIRV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader %s", path)
	}
	if _, err := vulkan.SPIRVWords(data); err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return data, nil
}
