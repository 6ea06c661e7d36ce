package projection

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/spherical"
	"github.com/zeusync/zeusphere/pkg/concurrent"
)

const (
	DefaultCullThreshold      = 1e-4
	DefaultViewerDistance     = 1.0
	DefaultSamplesPerUnitArea = 1e6
	MaxLOD                    = 4

	FullSphere = 4 * math.Pi
)

// Camera sits at the origin of the view frame. Orientation takes world
// directions into view directions; ViewerDistance is the radius of the
// viewing sphere the windows are mapped onto.
type Camera struct {
	Orientation        spherical.Rotation
	ViewerDistance     float64
	SamplesPerUnitArea float64
}

func DefaultCamera() Camera {
	return Camera{
		ViewerDistance:     DefaultViewerDistance,
		SamplesPerUnitArea: DefaultSamplesPerUnitArea,
	}
}

// Settings are the per-tick knobs the runtime optimizer drives.
type Settings struct {
	CullThreshold float64
	Culling       bool
	LODBias       int
	Parallel      bool
}

func DefaultSettings() Settings {
	return Settings{CullThreshold: DefaultCullThreshold, Culling: true}
}

// Illuminator returns the incoming light along a world direction.
type Illuminator interface {
	Irradiance(dir spherical.Direction) float64
}

// Ambient is a uniform Illuminator.
type Ambient float64

func (a Ambient) Irradiance(spherical.Direction) float64 { return float64(a) }

// Target is the read-only view of an object the projector needs.
type Target struct {
	ID        string
	Position  spherical.Point
	Radius    float64
	Albedo    [4]float64
	Emission  [3]float64
	Metallic  float64
	Roughness float64
	Ambient   float64
}

// Projection is the per-object output of one projection pass.
type Projection struct {
	ID      string
	Visible bool

	Distance        float64
	SolidAngle      float64
	AngularRadius   float64
	WindowArea      float64
	PerceptualScale float64
	LOD             int

	Window Window

	DenseSamples   int
	CostReduction  float64
	ViewDirection  spherical.Direction
	ContainsViewer bool
}

// SolidAngle returns the steradians subtended by a sphere of the given radius
// whose center is distance away: Ω = 2π(1 − √(1 − (ρ/d)²)). A viewer inside
// the sphere sees all of it.
func SolidAngle(radius, distance float64) float64 {
	if radius <= 0 {
		return 0
	}
	if distance <= radius {
		return FullSphere
	}
	s := radius / distance
	// 1 − √(1 − s²) written as s²/(1 + √(1 − s²)) to keep precision for tiny s.
	return 2 * math.Pi * (s * s) / (1 + math.Sqrt(1-s*s))
}

// Project maps one target into its solid-angle window.
func Project(cam Camera, settings Settings, t Target, light Illuminator) (Projection, error) {
	p := Projection{ID: t.ID}
	if err := t.Position.Validate(); err != nil {
		return p, err
	}
	if math.IsNaN(t.Radius) || t.Radius < 0 || math.IsInf(t.Radius, 0) {
		return p, fmt.Errorf("invalid radius %g", t.Radius)
	}
	if light == nil {
		light = Ambient(1)
	}

	view := cam.Orientation.Apply(t.Position)
	p.Distance = view.R
	p.SolidAngle = SolidAngle(t.Radius, view.R)
	p.ContainsViewer = view.R <= t.Radius && t.Radius > 0

	if view.IsOrigin() && !p.ContainsViewer {
		// A point-sized object at the eye has no direction to project along.
		return p, spherical.ErrDegenerate
	}

	if p.ContainsViewer {
		p.AngularRadius = math.Pi
	} else {
		p.AngularRadius = math.Asin(t.Radius / view.R)
	}
	p.ViewDirection = view.Dir()

	d := cam.ViewerDistance
	if d <= 0 {
		d = DefaultViewerDistance
	}
	p.WindowArea = p.SolidAngle * d * d
	p.PerceptualScale = perceivedSize(p.SolidAngle)

	p.Visible = p.SolidAngle > 0
	if settings.Culling && p.SolidAngle < settings.CullThreshold {
		p.Visible = false
	}
	if !p.Visible {
		return p, nil
	}

	p.LOD = levelOfDetail(p.SolidAngle, settings)
	p.Window = buildWindow(view, p.AngularRadius, t, light, cam.Orientation.Inverse())

	density := cam.SamplesPerUnitArea
	if density <= 0 {
		density = DefaultSamplesPerUnitArea
	}
	dense := math.Ceil(p.Window.SolidAngle() * d * d * density)
	if dense > math.MaxInt32 {
		dense = math.MaxInt32
	}
	p.DenseSamples = int(math.Max(dense, 1))
	if p.DenseSamples > CornerCount {
		p.CostReduction = 1 - float64(CornerCount)/float64(p.DenseSamples)
	}
	return p, nil
}

// perceivedSize follows Stevens' power law for apparent area (exponent 0.7),
// normalized so the full sphere maps to 1.
func perceivedSize(omega float64) float64 {
	return math.Pow(omega/FullSphere, 0.7)
}

// levelOfDetail picks one band per factor of four in solid angle above the
// culling threshold.
func levelOfDetail(omega float64, settings Settings) int {
	base := settings.CullThreshold
	if base <= 0 {
		base = DefaultCullThreshold
	}
	lod := int(math.Floor(math.Log2(omega/base)/2)) + settings.LODBias
	if lod < 0 {
		return 0
	}
	if lod > MaxLOD {
		return MaxLOD
	}
	return lod
}

// buildWindow lays the window out in the view frame; toWorld takes its
// sample directions back to the frame the lights are defined in.
func buildWindow(view spherical.Point, alpha float64, t Target, light Illuminator, toWorld spherical.Rotation) Window {
	w := Window{
		PhiCenter: view.Phi,
		radius:    t.Radius,
		shade: shading{
			albedo:   t.Albedo,
			emission: t.Emission,
			metallic: clamp01(t.Metallic),
			rough:    clamp01(t.Roughness),
			ambient:  t.Ambient,
		},
	}
	w.ThetaMin = math.Max(0, view.Theta-alpha)
	w.ThetaMax = math.Min(math.Pi, view.Theta+alpha)

	// Azimuthal half-width of the small circle of radius alpha around the
	// center; once the circle reaches a pole the window spans every azimuth.
	sinT := math.Sin(view.Theta)
	sinA := math.Sin(alpha)
	if alpha >= math.Pi/2 || sinA >= sinT {
		w.PhiHalfWidth = math.Pi
	} else {
		w.PhiHalfWidth = math.Asin(sinA / sinT)
	}

	center := view.Dir()
	for i, uv := range cornerUV {
		dir := spherical.NewDirection(
			w.ThetaMin+uv[1]*(w.ThetaMax-w.ThetaMin),
			w.PhiCenter+(2*uv[0]-1)*w.PhiHalfWidth,
		)
		gamma := spherical.Separation(center, dir)
		s := Sample{
			Direction:  dir,
			Offset:     [2]float64{2*uv[0] - 1, 2*uv[1] - 1},
			PlaneDepth: view.R * math.Cos(gamma),
			Light:      light.Irradiance(toWorld.ApplyDir(dir)),
		}
		w.evaluate(&s)
		w.Corners[i] = s
	}
	w.Center = w.Sample(0.5, 0.5)
	return w
}

// Projector holds the camera and optimizer-driven settings between ticks.
// Settings change only through Apply, which the scheduler calls at tick
// boundaries.
type Projector struct {
	mu       sync.RWMutex
	camera   Camera
	settings Settings
	logger   log.Log
}

func NewProjector(camera Camera, settings Settings, logger log.Log) *Projector {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Projector{
		camera:   camera,
		settings: settings,
		logger:   logger.With(log.String("component", "projector")),
	}
}

func (p *Projector) Apply(settings Settings) {
	p.mu.Lock()
	p.settings = settings
	p.mu.Unlock()
}

func (p *Projector) SetCamera(camera Camera) {
	p.mu.Lock()
	p.camera = camera
	p.mu.Unlock()
}

func (p *Projector) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

func (p *Projector) Camera() Camera {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.camera
}

// Batch is the result of projecting every target of one tick. Projections
// keeps the target order; skipped targets are left with Visible=false.
type Batch struct {
	Projections []Projection
	Skipped     []*faults.NumericError
}

// ProjectAll projects targets in order. With Settings.Parallel the work fans
// out; each goroutine writes only its own slot, so the result does not
// depend on scheduling.
func (p *Projector) ProjectAll(ctx context.Context, tick uint64, targets []Target, light Illuminator) (Batch, error) {
	p.mu.RLock()
	cam, settings := p.camera, p.settings
	p.mu.RUnlock()

	out := make([]Projection, len(targets))
	errs := make([]error, len(targets))

	err := concurrent.Each(ctx, len(targets), settings.Parallel, func(i int) {
		out[i], errs[i] = Project(cam, settings, targets[i], light)
	})
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Projections: out}
	for i, err := range errs {
		if err == nil {
			continue
		}
		out[i] = Projection{ID: targets[i].ID}
		nerr := &faults.NumericError{ObjectID: targets[i].ID, Stage: "projection", Tick: tick, Cause: err}
		batch.Skipped = append(batch.Skipped, nerr)
		p.logger.Warn("Object skipped by projector", log.Tick(tick), log.String("object", targets[i].ID), log.Error(err))
	}
	return batch, nil
}

// Culled returns the IDs hidden by the threshold alone.
func Culled(cam Camera, threshold float64, targets []Target) map[string]bool {
	settings := Settings{CullThreshold: threshold, Culling: true}
	culled := make(map[string]bool)
	for _, t := range targets {
		proj, err := Project(cam, settings, t, nil)
		if err != nil {
			continue
		}
		if !proj.Visible {
			culled[t.ID] = true
		}
	}
	return culled
}
