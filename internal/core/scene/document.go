package scene

// Document is the declarative scene as it arrives from the front end, in
// JSON or YAML. Compile turns it into typed runtime values.
type Document struct {
	Name         string           `json:"name" yaml:"name"`
	Seed         uint64           `json:"seed,omitempty" yaml:"seed,omitempty"`
	Environment  EnvironmentDoc   `json:"environment,omitempty" yaml:"environment,omitempty"`
	Materials    []MaterialDoc    `json:"materials" yaml:"materials"`
	Objects      []ObjectDoc      `json:"objects" yaml:"objects"`
	Optimization *OptimizationDoc `json:"optimization,omitempty" yaml:"optimization,omitempty"`
}

type PointDoc struct {
	R     float64 `json:"r" yaml:"r"`
	Theta float64 `json:"theta" yaml:"theta"`
	Phi   float64 `json:"phi" yaml:"phi"`
}

type DirectionDoc struct {
	Theta float64 `json:"theta" yaml:"theta"`
	Phi   float64 `json:"phi" yaml:"phi"`
}

type EnvironmentDoc struct {
	Ambient float64    `json:"ambient,omitempty" yaml:"ambient,omitempty"`
	Lights  []LightDoc `json:"lights,omitempty" yaml:"lights,omitempty"`
}

type LightDoc struct {
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Direction DirectionDoc `json:"direction" yaml:"direction"`
	Intensity float64      `json:"intensity" yaml:"intensity"`
	// Spread is the half-angle in radians over which the light falls off to zero.
	Spread float64 `json:"spread,omitempty" yaml:"spread,omitempty"`
}

type MaterialDoc struct {
	ID        string     `json:"id" yaml:"id"`
	Albedo    []float64  `json:"albedo" yaml:"albedo"`
	Metallic  float64    `json:"metallic,omitempty" yaml:"metallic,omitempty"`
	Roughness float64    `json:"roughness,omitempty" yaml:"roughness,omitempty"`
	Emission  []float64  `json:"emission,omitempty" yaml:"emission,omitempty"`
	Thermo    *ThermoDoc `json:"thermo" yaml:"thermo"`
}

type ThermoDoc struct {
	Thresholds       *ThresholdsDoc     `json:"thresholds" yaml:"thresholds"`
	Density          map[string]float64 `json:"density,omitempty" yaml:"density,omitempty"`
	Viscosity        float64            `json:"viscosity,omitempty" yaml:"viscosity,omitempty"`
	SurfaceTension   float64            `json:"surface_tension,omitempty" yaml:"surface_tension,omitempty"`
	Compressibility  float64            `json:"compressibility,omitempty" yaml:"compressibility,omitempty"`
	IonizationEnergy float64            `json:"ionization_energy,omitempty" yaml:"ionization_energy,omitempty"`
	Conductivity     float64            `json:"conductivity,omitempty" yaml:"conductivity,omitempty"`
}

type ThresholdsDoc struct {
	Melt              float64 `json:"melt" yaml:"melt"`
	Boil              float64 `json:"boil" yaml:"boil"`
	Ionize            float64 `json:"ionize" yaml:"ionize"`
	Hysteresis        float64 `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`
	ReferencePressure float64 `json:"reference_pressure,omitempty" yaml:"reference_pressure,omitempty"`
	PressureShift     float64 `json:"pressure_shift,omitempty" yaml:"pressure_shift,omitempty"`
}

type ObjectDoc struct {
	ID              string      `json:"id" yaml:"id"`
	Position        PointDoc    `json:"position" yaml:"position"`
	Radius          float64     `json:"radius" yaml:"radius"`
	Mass            float64     `json:"mass,omitempty" yaml:"mass,omitempty"`
	Charge          float64     `json:"charge,omitempty" yaml:"charge,omitempty"`
	Material        string      `json:"material" yaml:"material"`
	Phase           string      `json:"phase" yaml:"phase"`
	Temperature     float64     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Pressure        float64     `json:"pressure,omitempty" yaml:"pressure,omitempty"`
	Velocity        PointDoc    `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	AngularVelocity PointDoc    `json:"angular_velocity,omitempty" yaml:"angular_velocity,omitempty"`
	Behavior        BehaviorDoc `json:"behavior,omitempty" yaml:"behavior,omitempty"`
}

type BehaviorDoc struct {
	Forces      []ForceDoc      `json:"forces,omitempty" yaml:"forces,omitempty"`
	Constraints []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Animation   *AnimationDoc   `json:"animation,omitempty" yaml:"animation,omitempty"`
}

type ForceDoc struct {
	Kind         string    `json:"kind" yaml:"kind"`
	Magnitude    float64   `json:"magnitude,omitempty" yaml:"magnitude,omitempty"`
	Electric     *PointDoc `json:"electric,omitempty" yaml:"electric,omitempty"`
	Magnetic     *PointDoc `json:"magnetic,omitempty" yaml:"magnetic,omitempty"`
	HeatRate     float64   `json:"heat_rate,omitempty" yaml:"heat_rate,omitempty"`
	PressureRate float64   `json:"pressure_rate,omitempty" yaml:"pressure_rate,omitempty"`
}

type ConstraintDoc struct {
	Kind     string        `json:"kind" yaml:"kind"`
	Radius   float64       `json:"radius,omitempty" yaml:"radius,omitempty"`
	Pole     *DirectionDoc `json:"pole,omitempty" yaml:"pole,omitempty"`
	ThetaMin float64       `json:"theta_min,omitempty" yaml:"theta_min,omitempty"`
	ThetaMax float64       `json:"theta_max,omitempty" yaml:"theta_max,omitempty"`
}

type AnimationDoc struct {
	Loop   bool       `json:"loop,omitempty" yaml:"loop,omitempty"`
	Tracks []TrackDoc `json:"tracks" yaml:"tracks"`
}

type TrackDoc struct {
	Channel   string        `json:"channel" yaml:"channel"`
	Keyframes []KeyframeDoc `json:"keyframes" yaml:"keyframes"`
}

type KeyframeDoc struct {
	Time  float64 `json:"t" yaml:"t"`
	Value float64 `json:"value" yaml:"value"`
}

type OptimizationDoc struct {
	Level         int      `json:"level,omitempty" yaml:"level,omitempty"`
	Adaptive      *bool    `json:"adaptive,omitempty" yaml:"adaptive,omitempty"`
	TargetFPS     float64  `json:"target_fps,omitempty" yaml:"target_fps,omitempty"`
	CullThreshold float64  `json:"cull_threshold,omitempty" yaml:"cull_threshold,omitempty"`
	Phases        []string `json:"phases,omitempty" yaml:"phases,omitempty"`
}
