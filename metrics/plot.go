package metrics

import (
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

const (
	curveWidth  = 6 * vg.Inch
	curveHeight = 4 * vg.Inch
)

func lossCurve(history []float64, title string) (*plot.Plot, error) {
	if len(history) == 0 {
		return nil, errors.NewValueError("LossCurve", "empty loss history")
	}
	if err := errors.CheckNumericalStability("loss history", history, len(history)); err != nil {
		return nil, err
	}

	pts := make(plotter.XYs, len(history))
	for i, loss := range history {
		pts[i].X = float64(i + 1)
		pts[i].Y = loss
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, errors.Wrap(err, "optml: loss curve")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid(), line)
	return p, nil
}

// SaveLossCurve writes the loss of every iteration as a line plot. The image
// format follows the file extension (.png, .svg, .pdf, ...).
func SaveLossCurve(history []float64, title, path string) error {
	p, err := lossCurve(history, title)
	if err != nil {
		return err
	}
	if err := p.Save(curveWidth, curveHeight, path); err != nil {
		return errors.Wrapf(err, "optml: save loss curve to %s", path)
	}
	return nil
}

// WriteLossCurve renders the loss curve in format ("png", "svg", ...) to w.
func WriteLossCurve(w io.Writer, history []float64, title, format string) error {
	p, err := lossCurve(history, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(curveWidth, curveHeight, format)
	if err != nil {
		return errors.Wrapf(err, "optml: loss curve format %q", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "optml: write loss curve")
	}
	return nil
}
