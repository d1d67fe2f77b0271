package fake

import (
	"encoding/binary"

	"go.viam.com/depthsnap/components/camera"
)

// Frame is an in-memory video frame. Pix is row-major with no padding.
type Frame struct {
	W, H int
	BPP  int
	Pix  []byte
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.W }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.H }

// BytesPerPixel returns the pixel size.
func (f *Frame) BytesPerPixel() int { return f.BPP }

// Data returns the pixel payload.
func (f *Frame) Data() []byte { return f.Pix }

// SolidColorFrame returns a BGR8 frame filled with a single color.
func SolidColorFrame(width, height int, r, g, b uint8) *Frame {
	pix := make([]byte, 3*width*height)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = b, g, r
	}
	return &Frame{W: width, H: height, BPP: 3, Pix: pix}
}

// ConstantDepthFrame returns a Z16 frame where every pixel reads d.
func ConstantDepthFrame(width, height int, d uint16) *Frame {
	pix := make([]byte, 2*width*height)
	for i := 0; i < len(pix); i += 2 {
		binary.LittleEndian.PutUint16(pix[i:], d)
	}
	return &Frame{W: width, H: height, BPP: 2, Pix: pix}
}

// Frameset is a scripted bundle of frames. A nil Color or DepthFrame simulates a dropped frame.
type Frameset struct {
	Color      *Frame
	DepthFrame *Frame
}

// First returns the color frame for StreamColor and nil for everything else.
func (fs *Frameset) First(kind camera.StreamKind) camera.VideoFrame {
	if kind != camera.StreamColor || fs.Color == nil {
		return nil
	}
	return fs.Color
}

// Depth returns the depth frame, if any.
func (fs *Frameset) Depth() camera.VideoFrame {
	if fs.DepthFrame == nil {
		return nil
	}
	return fs.DepthFrame
}

// borrow copies src into the reusable frame dst, growing it when needed, and returns dst. A nil
// src yields nil.
func borrow(dst **Frame, src *Frame) *Frame {
	if src == nil {
		return nil
	}
	if *dst == nil {
		*dst = &Frame{}
	}
	f := *dst
	f.W, f.H, f.BPP = src.W, src.H, src.BPP
	if cap(f.Pix) < len(src.Pix) {
		f.Pix = make([]byte, len(src.Pix))
	}
	f.Pix = f.Pix[:len(src.Pix)]
	copy(f.Pix, src.Pix)
	return f
}
