package workspace

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/Hypnotriod/jpegenc"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"planararm/kinematics"
)

const CIRCLE_SEGMENTS = 180

var (
	reachableColor = color.RGBA{R: 160, G: 190, B: 230, A: 255}
	annulusColor   = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	validColor     = color.RGBA{R: 20, G: 150, B: 40, A: 255}
	invalidColor   = color.RGBA{R: 210, G: 30, B: 30, A: 255}
	armColor       = color.RGBA{R: 30, G: 30, B: 30, A: 255}
)

var jpegParams = jpegenc.EncodeParams{
	QualityFactor: jpegenc.QualityFactorHigh,
	PixelType:     jpegenc.PixelTypeRGB888,
	Subsample:     jpegenc.Subsample444,
}

func circle(radius float64) plotter.XYs {
	xys := make(plotter.XYs, CIRCLE_SEGMENTS+1)
	for i := range xys {
		a := 2 * math.Pi * float64(i) / CIRCLE_SEGMENTS
		xys[i].X = radius * math.Cos(a)
		xys[i].Y = radius * math.Sin(a)
	}
	return xys
}

func toXYs(points []kinematics.Point2D) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i].X = p.X
		xys[i].Y = p.Y
	}
	return xys
}

// Plot draws the reachable area, the reach annulus and any overlays.
func (m *Map) Plot(overlays ...Overlay) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("workspace L1=%g L2=%g, %d deg raster", m.Geometry.L1, m.Geometry.L2, m.StepDeg)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	reach := m.Geometry.MaxReach()
	p.X.Min, p.X.Max = -reach, reach
	p.Y.Min, p.Y.Max = -reach, reach
	p.Add(plotter.NewGrid())

	area, err := plotter.NewScatter(toXYs(m.Points))
	if err != nil {
		return nil, err
	}
	area.GlyphStyle.Radius = vg.Points(1)
	area.GlyphStyle.Color = reachableColor
	p.Add(area)
	p.Legend.Add("reachable", area)

	for _, r := range []float64{m.Geometry.MaxReach(), m.Geometry.MinReach()} {
		if r == 0 {
			continue
		}
		ring, err := plotter.NewLine(circle(r))
		if err != nil {
			return nil, err
		}
		ring.LineStyle.Color = annulusColor
		ring.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ring)
	}

	for _, o := range overlays {
		var valid, invalid []kinematics.Point2D
		for i, pt := range o.Points {
			if o.Valid[i] {
				valid = append(valid, pt)
			} else {
				invalid = append(invalid, pt)
			}
		}
		for _, set := range []struct {
			points []kinematics.Point2D
			color  color.Color
			label  string
		}{
			{valid, validColor, o.Name},
			{invalid, invalidColor, o.Name + " (skipped)"},
		} {
			if len(set.points) == 0 {
				continue
			}
			s, err := plotter.NewScatter(toXYs(set.points))
			if err != nil {
				return nil, err
			}
			s.GlyphStyle.Radius = vg.Points(2)
			s.GlyphStyle.Color = set.color
			p.Add(s)
			p.Legend.Add(set.label, s)
		}
	}
	return p, nil
}

// PosePlot is Plot with the arm links drawn at the given joint angles.
func (m *Map) PosePlot(angles kinematics.JointAngles, overlays ...Overlay) (*plot.Plot, error) {
	p, err := m.Plot(overlays...)
	if err != nil {
		return nil, err
	}
	elbow := kinematics.Forward(kinematics.JointAngles{Theta1: angles.Theta1}, kinematics.ArmGeometry{L1: m.Geometry.L1})
	tip := kinematics.Forward(angles, m.Geometry)
	links, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: elbow.X, Y: elbow.Y}, {X: tip.X, Y: tip.Y}})
	if err != nil {
		return nil, err
	}
	links.LineStyle.Width = vg.Points(3)
	links.LineStyle.Color = armColor
	p.Add(links)
	p.Title.Text = fmt.Sprintf("shoulder %.1f deg, elbow %.1f deg, tip %v", angles.Theta1, angles.Theta2, tip)
	return p, nil
}

// RenderPNG writes p as a PNG of width x height points.
func RenderPNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	c := vgimg.New(width, height)
	p.Draw(draw.New(c))
	_, err := vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}

// FrameEncoder rasterises plots into JPEG frames of a fixed pixel size,
// reusing its buffers between frames. Not safe for concurrent use.
type FrameEncoder struct {
	width  int
	height int
	rgba   *image.RGBA
	rgb    []byte
	jpeg   []byte
}

func NewFrameEncoder(width, height int) *FrameEncoder {
	return &FrameEncoder{
		width:  width,
		height: height,
		rgba:   image.NewRGBA(image.Rect(0, 0, width, height)),
		rgb:    make([]byte, width*height*3),
		jpeg:   make([]byte, width*height*3),
	}
}

// RGB draws p and returns packed RGB888 pixels. The slice is reused by the
// next call.
func (e *FrameEncoder) RGB(p *plot.Plot) []byte {
	for i := range e.rgba.Pix {
		e.rgba.Pix[i] = 0xff
	}
	p.Draw(draw.New(vgimg.NewWith(vgimg.UseImage(e.rgba))))
	packRGB(e.rgba, e.rgb)
	return e.rgb
}

// Encode returns the JPEG bytes of p. The slice is reused by the next call.
func (e *FrameEncoder) Encode(p *plot.Plot) ([]byte, error) {
	n, err := jpegenc.Encode(e.width, e.height, jpegParams, e.RGB(p), e.jpeg)
	if err != nil {
		return nil, err
	}
	return e.jpeg[:n], nil
}

func packRGB(src *image.RGBA, dst []byte) {
	b := src.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[(y-b.Min.Y)*src.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[i] = row[4*x]
			dst[i+1] = row[4*x+1]
			dst[i+2] = row[4*x+2]
			i += 3
		}
	}
}
