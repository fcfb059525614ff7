package scenario

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Stage ramps the number of virtual users linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration" json:"duration"`
	Target   int           `mapstructure:"target" json:"target"`
}

// Stages is an ordered ramp plan starting from zero virtual users.
type Stages []Stage

// DefaultStages ramps to 100 VUs, spikes to 200, then drains to zero.
func DefaultStages() Stages {
	return Stages{
		{Duration: 20 * time.Second, Target: 100},
		{Duration: 20 * time.Second, Target: 200},
		{Duration: 20 * time.Second, Target: 0},
	}
}

func (s Stages) Total() time.Duration {
	var total time.Duration
	for _, st := range s {
		total += st.Duration
	}
	return total
}

func (s Stages) MaxTarget() int {
	max := 0
	for _, st := range s {
		if st.Target > max {
			max = st.Target
		}
	}
	return max
}

// TargetAt returns the number of virtual users scheduled at elapsed.
// It is 0 once the plan has finished.
func (s Stages) TargetAt(elapsed time.Duration) int {
	if elapsed < 0 {
		return 0
	}

	from := 0
	var start time.Duration
	for _, st := range s {
		end := start + st.Duration
		if elapsed < end {
			frac := float64(elapsed-start) / float64(st.Duration)
			return int(math.Round(float64(from) + float64(st.Target-from)*frac))
		}
		from = st.Target
		start = end
	}
	return 0
}

func (s Stages) Validate() error {
	if len(s) == 0 {
		return errors.New("at least one stage is required")
	}
	for i, st := range s {
		if st.Duration < 0 {
			return errors.Errorf("stage %d: negative duration %s", i+1, st.Duration)
		}
		if st.Target < 0 {
			return errors.Errorf("stage %d: negative target %d", i+1, st.Target)
		}
	}
	if s.Total() <= 0 {
		return errors.New("stages must last longer than zero")
	}
	return nil
}

// ParseStages reads "20s:100,20s:200,20s:0".
func ParseStages(spec string) (Stages, error) {
	var out Stages
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dur, target, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.Errorf("stage %q: want <duration>:<target>", part)
		}
		d, err := time.ParseDuration(strings.TrimSpace(dur))
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q", part)
		}
		out = append(out, Stage{Duration: d, Target: n})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Stages) String() string {
	parts := make([]string, len(s))
	for i, st := range s {
		parts[i] = fmt.Sprintf("%s:%d", st.Duration, st.Target)
	}
	return strings.Join(parts, ",")
}
