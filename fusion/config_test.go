package fusion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	want := Config{
		NoiseAX:         9,
		NoiseAY:         9,
		LaserVar:        [2]float64{0.0225, 0.0225},
		RadarVar:        [3]float64{0.09, 0.0009, 0.09},
		MaxDt:           60,
		JacobianEpsilon: 1e-4,
		InitPosVar:      1,
		InitVelVar:      1000,
	}
	if diff := cmp.Diff(want, DefaultConfig()); diff != "" {
		t.Errorf("DefaultConfig() mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigPartial(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "fusion.yaml", `
noise_ax: 5
radar_var: [0.1, 0.001, 0.2]
max_dt: 30
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.NoiseAX = 5
	want.RadarVar = [3]float64{0.1, 0.001, 0.2}
	want.MaxDt = 30
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
		is   error
	}{
		{name: "negative variance", file: "c.yaml", body: "laser_var: [0.1, -1]\n", is: ErrInvalidConfig},
		{name: "zero epsilon", file: "c.yml", body: "jacobian_epsilon: 0\n", is: ErrInvalidConfig},
		{name: "zero prior", file: "c.yaml", body: "init_vel_var: 0\n", is: ErrInvalidConfig},
		{name: "nan max dt", file: "c.yaml", body: "max_dt: .nan\n", is: ErrInvalidConfig},
		{name: "inf noise", file: "c.yaml", body: "noise_ax: .inf\n", is: ErrInvalidConfig},
		{name: "nan variance", file: "c.yaml", body: "radar_var: [0.09, .nan, 0.09]\n", is: ErrInvalidConfig},
		{name: "bad yaml", file: "c.yaml", body: "max_dt: [\n"},
		{name: "wrong extension", file: "c.json", body: "{}"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
