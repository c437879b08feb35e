package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/anchorpoint/internal/security"
)

var (
	hitColor  = color.RGBA{R: 38, G: 130, B: 142, A: 255}
	missColor = color.RGBA{R: 220, G: 60, B: 60, A: 255}
)

// SavePlots writes two PNGs for the retained samples into dir: a top-down
// X/Z scatter of hit positions and a hit height timeline with misses
// marked on the axis. It returns the written paths.
func (r *TraceRecorder) SavePlots(dir, name string) ([]string, error) {
	samples := r.Samples()
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	name = security.SanitizeFilename(name)

	var hitsXZ, heights, misses plotter.XYs
	for _, s := range samples {
		sec := s.T.Seconds()
		if !s.Hit {
			misses = append(misses, plotter.XY{X: sec, Y: 0})
			continue
		}
		hitsXZ = append(hitsXZ, plotter.XY{X: s.Pose.Position.X, Y: s.Pose.Position.Z})
		heights = append(heights, plotter.XY{X: sec, Y: s.Pose.Position.Y})
	}

	pTop := plot.New()
	pTop.Title.Text = fmt.Sprintf("%s: hit positions (top-down)", name)
	pTop.X.Label.Text = "X (m)"
	pTop.Y.Label.Text = "Z (m)"
	pTop.Add(plotter.NewGrid())
	if len(hitsXZ) > 0 {
		sc, err := plotter.NewScatter(hitsXZ)
		if err != nil {
			return nil, fmt.Errorf("failed to build scatter: %w", err)
		}
		sc.GlyphStyle.Color = hitColor
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		pTop.Add(sc)
		pTop.Legend.Add("hit", sc)
	}

	pTime := plot.New()
	pTime.Title.Text = fmt.Sprintf("%s: hit height over time (%.0f%% hits)", name, 100*r.HitRate())
	pTime.X.Label.Text = "Session time (s)"
	pTime.Y.Label.Text = "Y (m)"
	pTime.Add(plotter.NewGrid())
	if len(heights) > 0 {
		line, err := plotter.NewLine(heights)
		if err != nil {
			return nil, fmt.Errorf("failed to build line: %w", err)
		}
		line.Color = hitColor
		line.Width = vg.Points(1)
		pTime.Add(line)
		pTime.Legend.Add("hit height", line)
	}
	if len(misses) > 0 {
		sc, err := plotter.NewScatter(misses)
		if err != nil {
			return nil, fmt.Errorf("failed to build miss scatter: %w", err)
		}
		sc.GlyphStyle.Color = missColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		pTime.Add(sc)
		pTime.Legend.Add("miss", sc)
	}

	for _, p := range []*plot.Plot{pTop, pTime} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	topFile := filepath.Join(dir, fmt.Sprintf("%s_topdown.png", name))
	timeFile := filepath.Join(dir, fmt.Sprintf("%s_height.png", name))
	for _, f := range []string{topFile, timeFile} {
		if err := security.ValidateWithinDir(f, dir); err != nil {
			return nil, err
		}
	}
	if err := pTop.Save(8*vg.Inch, 8*vg.Inch, topFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", topFile, err)
	}
	if err := pTime.Save(14*vg.Inch, 6*vg.Inch, timeFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", timeFile, err)
	}
	return []string{topFile, timeFile}, nil
}
