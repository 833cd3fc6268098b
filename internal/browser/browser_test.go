package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/product-info-extractor/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth != 1440 || opts.ViewportHeight != 900 {
		t.Errorf("Expected viewport to be 1440x900, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}

	if opts.DeviceScaleFactor != 2 {
		t.Errorf("Expected device scale factor 2, got %v", opts.DeviceScaleFactor)
	}

	if opts.Locale != "en-US" || opts.TimezoneID != "America/New_York" {
		t.Errorf("Expected en-US / America/New_York, got %s / %s", opts.Locale, opts.TimezoneID)
	}
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"133.0.6943.16", "133"},
		{"HeadlessChrome/131.0.6778.33", "131"},
		{"", "133"},
		{"beta", "133"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			if got := MajorVersion(tt.version); got != tt.want {
				t.Errorf("MajorVersion(%q) = %q, want %q", tt.version, got, tt.want)
			}
		})
	}
}

func TestUserAgentMatchesClientHints(t *testing.T) {
	version := "HeadlessChrome/131.0.6778.33"

	ua := UserAgent(version)
	headers := FingerprintHeaders(version, "")

	assert.Contains(t, ua, "Chrome/131.0.6778.33 Safari/537.36")
	assert.Contains(t, ua, "Macintosh; Intel Mac OS X 10_15_7")
	assert.NotContains(t, ua, "HeadlessChrome")
	assert.Contains(t, headers["sec-ch-ua"], `"Google Chrome";v="131"`)
	assert.Equal(t, `"macOS"`, headers["sec-ch-ua-platform"])
	assert.Equal(t, "en-US,en;q=0.9", headers["Accept-Language"])
	assert.Equal(t, "https://www.google.com/", headers["referer"])
}

func TestNewIsolatedContext_BeforeInit(t *testing.T) {
	s := NewSession(nil, nil)

	_, err := s.NewIsolatedContext(ContextOverrides{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, s.Initialized())
	assert.Empty(t, s.Version())
}

type recordingPage struct {
	moves   [][2]float64
	scripts []string
	args    []any
	moveErr error
}

func (p *recordingPage) Goto(string, GotoOptions) (int, error) { return 200, nil }
func (p *recordingPage) URL() string                           { return "" }
func (p *recordingPage) Title() (string, error)                { return "", nil }
func (p *recordingPage) Content() (string, error)              { return "", nil }
func (p *recordingPage) Evaluate(script string, arg any) (any, error) {
	p.scripts = append(p.scripts, script)
	p.args = append(p.args, arg)
	return nil, nil
}
func (p *recordingPage) MouseMove(x, y float64, _ int) error {
	p.moves = append(p.moves, [2]float64{x, y})
	return p.moveErr
}
func (p *recordingPage) WaitForSelector(string, time.Duration) error { return nil }
func (p *recordingPage) Close() error                                { return nil }

func TestHumanizeInteraction(t *testing.T) {
	var waits []time.Duration
	pacer := ratelimit.NewPacerWithSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}, 3)
	page := &recordingPage{}

	err := HumanizeInteraction(context.Background(), page, pacer, DefaultHumanizeOptions())
	require.NoError(t, err)

	require.Len(t, page.moves, 2)
	for _, m := range page.moves {
		assert.Less(t, m[0], 500.0)
		assert.Less(t, m[1], 500.0)
	}
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, waits)

	require.Equal(t, []string{ScrollScript}, page.scripts)
	assert.Equal(t, map[string]any{"step": 100, "interval": int64(150), "limit": 600}, page.args[0])
}

func TestHumanizeInteraction_ContinuesAfterPointerFailure(t *testing.T) {
	pacer := ratelimit.NewPacerWithSleep(func(context.Context, time.Duration) error { return nil }, 3)
	page := &recordingPage{moveErr: errors.New("target closed")}

	err := HumanizeInteraction(context.Background(), page, pacer, DefaultHumanizeOptions())

	assert.Error(t, err)
	assert.Len(t, page.moves, 2)
	assert.Len(t, page.scripts, 1)
}
