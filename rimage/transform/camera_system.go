package transform

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// Extrinsics is the rigid transform from one sensor's coordinate frame to another's. The rotation
// is a row-major 3x3 matrix and the translation is in meters.
type Extrinsics struct {
	RotationMatrix    []float64 `json:"rotation_rads"`
	TranslationVector []float64 `json:"translation_m"`
}

// IdentityExtrinsics returns extrinsics for two sensors sharing one optical center and orientation.
func IdentityExtrinsics() Extrinsics {
	return Extrinsics{
		RotationMatrix:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		TranslationVector: []float64{0, 0, 0},
	}
}

// CheckValid verifies the shape of the extrinsics and that the rotation is a proper rotation.
func (ext *Extrinsics) CheckValid() error {
	if len(ext.RotationMatrix) != 9 {
		return errors.Errorf("rotation matrix must have 9 elements, got %d", len(ext.RotationMatrix))
	}
	if len(ext.TranslationVector) != 3 {
		return errors.Errorf("translation vector must have 3 elements, got %d", len(ext.TranslationVector))
	}
	rot := mat.NewDense(3, 3, ext.RotationMatrix)
	if det := mat.Det(rot); math.Abs(det-1) > 1e-3 {
		return errors.Errorf("rotation matrix determinant must be 1, got %f", det)
	}
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	if !mat.EqualApprox(&rrt, eye, 1e-3) {
		return errors.New("rotation matrix is not orthonormal")
	}
	return nil
}

// TransformPoint applies the rotation then the translation to pt.
func (ext *Extrinsics) TransformPoint(pt r3.Vector) r3.Vector {
	r := ext.RotationMatrix
	t := ext.TranslationVector
	return r3.Vector{
		X: r[0]*pt.X + r[1]*pt.Y + r[2]*pt.Z + t[0],
		Y: r[3]*pt.X + r[4]*pt.Y + r[5]*pt.Z + t[1],
		Z: r[6]*pt.X + r[7]*pt.Y + r[8]*pt.Z + t[2],
	}
}

// DepthColorIntrinsicsExtrinsics holds the intrinsics of a depth and a color sensor along with the
// extrinsics from the depth frame to the color frame.
type DepthColorIntrinsicsExtrinsics struct {
	ColorCamera  PinholeCameraIntrinsics `json:"color_intrinsic_parameters"`
	DepthCamera  PinholeCameraIntrinsics `json:"depth_intrinsic_parameters"`
	ExtrinsicD2C Extrinsics              `json:"depth_to_color_extrinsic_parameters"`
}

// CheckValid checks that all three parameter sets are usable.
func (dcie *DepthColorIntrinsicsExtrinsics) CheckValid() error {
	if dcie == nil {
		return NewNoIntrinsicsError("camera system does not exist")
	}
	if err := dcie.ColorCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "color camera")
	}
	if err := dcie.DepthCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "depth camera")
	}
	return errors.Wrap(dcie.ExtrinsicD2C.CheckValid(), "depth to color extrinsics")
}

// NewDepthColorIntrinsicsExtrinsicsFromBytes parses a camera system from JSON.
func NewDepthColorIntrinsicsExtrinsicsFromBytes(byteJSON []byte) (*DepthColorIntrinsicsExtrinsics, error) {
	intrinsics := &DepthColorIntrinsicsExtrinsics{}
	if err := json.Unmarshal(byteJSON, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing byte array")
	}
	return intrinsics, nil
}

// NewDepthColorIntrinsicsExtrinsicsFromJSONFile takes in a file path to a JSON and turns it into
// DepthColorIntrinsicsExtrinsics.
func NewDepthColorIntrinsicsExtrinsicsFromJSONFile(jsonPath string) (*DepthColorIntrinsicsExtrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	return NewDepthColorIntrinsicsExtrinsicsFromBytes(byteValue)
}

// AlignZ16ToColor reprojects a Z16 depth buffer (little-endian, depth camera resolution) into the
// color camera's pixel grid and returns a new Z16 buffer at color resolution. depthScale converts
// device units to meters.
//
// Each depth pixel is deprojected at two opposite corners, moved into the color frame and
// projected. Every color pixel whose center falls inside the projected box receives the raw depth
// value, with the nearest reading winning where several depth pixels overlap. Color pixels that
// nothing lands on stay 0.
func (dcie *DepthColorIntrinsicsExtrinsics) AlignZ16ToColor(depth []byte, depthScale float64) ([]byte, error) {
	dw, dh := dcie.DepthCamera.Width, dcie.DepthCamera.Height
	if want := 2 * dw * dh; len(depth) != want {
		return nil, errors.Errorf("depth buffer has %d bytes, expected %d for %dx%d", len(depth), want, dw, dh)
	}
	if depthScale <= 0 {
		return nil, errors.Errorf("depth scale must be positive, got %f", depthScale)
	}
	cw, ch := dcie.ColorCamera.Width, dcie.ColorCamera.Height
	aligned := make([]uint16, cw*ch)

	project := func(x, y, z float64) (float64, float64) {
		pt := dcie.ExtrinsicD2C.TransformPoint(dcie.DepthCamera.PixelToPoint(x, y, z))
		return dcie.ColorCamera.PointToPixel(pt)
	}

	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			idx := 2 * (y*dw + x)
			d := binary.LittleEndian.Uint16(depth[idx : idx+2])
			if d == 0 {
				continue
			}
			z := float64(d) * depthScale
			ua, va := project(float64(x)-0.5, float64(y)-0.5, z)
			ub, vb := project(float64(x)+0.5, float64(y)+0.5, z)
			u0, u1 := coveredPixels(math.Min(ua, ub), math.Max(ua, ub))
			v0, v1 := coveredPixels(math.Min(va, vb), math.Max(va, vb))
			u0, u1 = max(u0, 0), min(u1, cw-1)
			v0, v1 = max(v0, 0), min(v1, ch-1)
			for v := v0; v <= v1; v++ {
				for u := u0; u <= u1; u++ {
					cur := &aligned[v*cw+u]
					if *cur == 0 || d < *cur {
						*cur = d
					}
				}
			}
		}
	}

	out := make([]byte, 2*cw*ch)
	for i, d := range aligned {
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], d)
	}
	return out, nil
}

// coveredPixels returns the inclusive range of pixel indices whose centers fall inside [lo, hi).
// A span narrower than a pixel that contains no center maps to the pixel nearest its middle.
func coveredPixels(lo, hi float64) (int, int) {
	first := int(math.Ceil(lo))
	last := int(math.Ceil(hi)) - 1
	if last < first {
		c := roundPx((lo + hi) / 2)
		return c, c
	}
	return first, last
}
