package scene

import (
	"fmt"
	"math"
	"sort"
)

// Channel is the object field a keyframe track drives.
type Channel uint8

const (
	ChannelR Channel = iota + 1
	ChannelTheta
	ChannelPhi
	ChannelTemperature
)

var channelNames = map[string]Channel{
	"r":           ChannelR,
	"theta":       ChannelTheta,
	"phi":         ChannelPhi,
	"temperature": ChannelTemperature,
}

func (c Channel) String() string {
	for name, ch := range channelNames {
		if ch == c {
			return name
		}
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

func ParseChannel(s string) (Channel, error) {
	if c, ok := channelNames[s]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown animation channel %q", s)
}

type Keyframe struct {
	Time  float64
	Value float64
}

// Track holds keyframes sorted by strictly increasing time.
type Track struct {
	Channel   Channel
	Keyframes []Keyframe
}

// Sample interpolates the track linearly at t seconds. Before the first key
// and after the last the value holds.
func (tr Track) Sample(t float64) float64 {
	keys := tr.Keyframes
	if len(keys) == 0 {
		return 0
	}
	if t <= keys[0].Time {
		return keys[0].Value
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return last.Value
	}
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time > t })
	a, b := keys[i-1], keys[i]
	f := (t - a.Time) / (b.Time - a.Time)
	return a.Value + f*(b.Value-a.Value)
}

func (tr Track) Duration() float64 {
	if len(tr.Keyframes) == 0 {
		return 0
	}
	return tr.Keyframes[len(tr.Keyframes)-1].Time
}

// Animation is a set of tracks played from scene time zero.
type Animation struct {
	Loop   bool
	Tracks []Track
}

func (a Animation) Empty() bool { return len(a.Tracks) == 0 }

func (a Animation) Duration() float64 {
	d := 0.0
	for _, tr := range a.Tracks {
		d = math.Max(d, tr.Duration())
	}
	return d
}

// Values samples every track at scene time t.
func (a Animation) Values(t float64) map[Channel]float64 {
	if a.Empty() {
		return nil
	}
	if d := a.Duration(); a.Loop && d > 0 {
		t = math.Mod(t, d)
	}
	out := make(map[Channel]float64, len(a.Tracks))
	for _, tr := range a.Tracks {
		out[tr.Channel] = tr.Sample(t)
	}
	return out
}

func compileAnimation(doc *AnimationDoc) (Animation, error) {
	if doc == nil {
		return Animation{}, nil
	}
	anim := Animation{Loop: doc.Loop, Tracks: make([]Track, 0, len(doc.Tracks))}
	seen := make(map[Channel]bool)
	for i, td := range doc.Tracks {
		ch, err := ParseChannel(td.Channel)
		if err != nil {
			return Animation{}, fmt.Errorf("tracks[%d]: %w", i, err)
		}
		if seen[ch] {
			return Animation{}, fmt.Errorf("tracks[%d]: channel %s animated twice", i, ch)
		}
		seen[ch] = true
		if len(td.Keyframes) == 0 {
			return Animation{}, fmt.Errorf("tracks[%d]: no keyframes", i)
		}
		tr := Track{Channel: ch, Keyframes: make([]Keyframe, len(td.Keyframes))}
		for k, kf := range td.Keyframes {
			if math.IsNaN(kf.Time) || math.IsNaN(kf.Value) || math.IsInf(kf.Value, 0) || kf.Time < 0 {
				return Animation{}, fmt.Errorf("tracks[%d].keyframes[%d]: invalid keyframe", i, k)
			}
			if k > 0 && kf.Time <= td.Keyframes[k-1].Time {
				return Animation{}, fmt.Errorf("tracks[%d].keyframes[%d]: time %g must follow %g", i, k, kf.Time, td.Keyframes[k-1].Time)
			}
			tr.Keyframes[k] = Keyframe{Time: kf.Time, Value: kf.Value}
		}
		anim.Tracks = append(anim.Tracks, tr)
	}
	return anim, nil
}
