package main

import (
	"context"
	"image"

	"github.com/nvr-ai/go-motion/controller"
	"github.com/nvr-ai/go-motion/motion"
	"gocv.io/x/gocv"
)

// keyCommands maps preview window keys to controller commands.
var keyCommands = map[int]controller.Command{
	'q': controller.CommandQuit,
	27:  controller.CommandQuit, // esc
	's': controller.CommandSave,
	'r': controller.CommandResetBackground,
	't': controller.CommandToggleThreshold,
}

type previewFrame struct {
	frame gocv.Mat
	mask  gocv.Mat
}

func (p previewFrame) close() {
	p.frame.Close()
	p.mask.Close()
}

// preview is a sink that hands annotated frames to the window loop running
// on the main thread. Only the latest frame is kept.
type preview struct {
	scale  float64
	frames chan previewFrame
}

func newPreview(scale float64) *preview {
	if scale <= 0 {
		scale = 1
	}
	return &preview{scale: scale, frames: make(chan previewFrame, 1)}
}

// Handle copies the report images for display.
func (p *preview) Handle(_ context.Context, report *motion.Report) error {
	if report.Frame.Empty() {
		return nil
	}
	next := previewFrame{frame: p.resize(report.Frame), mask: gocv.NewMat()}
	if !report.Mask.Empty() {
		next.mask.Close()
		next.mask = p.resize(report.Mask)
	}

	for {
		select {
		case p.frames <- next:
			return nil
		default:
		}
		select {
		case old := <-p.frames:
			old.close()
		default:
		}
	}
}

func (p *preview) resize(src gocv.Mat) gocv.Mat {
	if p.scale == 1 {
		return src.Clone()
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Point{}, p.scale, p.scale, gocv.InterpolationLinear)
	return dst
}

// loop shows frames and translates key presses into commands until done
// delivers the controller's result.
func (p *preview) loop(done <-chan error, send func(controller.Command) bool) error {
	window := gocv.NewWindow("motionwatch")
	defer window.Close()
	var maskWindow *gocv.Window
	defer func() {
		if maskWindow != nil {
			maskWindow.Close()
		}
	}()
	defer p.drain()

	for {
		select {
		case err := <-done:
			return err
		case f := <-p.frames:
			window.IMShow(f.frame)
			switch {
			case !f.mask.Empty():
				if maskWindow == nil {
					maskWindow = gocv.NewWindow("motionwatch threshold")
				}
				maskWindow.IMShow(f.mask)
			case maskWindow != nil:
				maskWindow.Close()
				maskWindow = nil
			}
			f.close()
		default:
		}

		if cmd, ok := keyCommands[window.WaitKey(10)]; ok {
			send(cmd)
		}
	}
}

func (p *preview) drain() {
	for {
		select {
		case f := <-p.frames:
			f.close()
		default:
			return
		}
	}
}
