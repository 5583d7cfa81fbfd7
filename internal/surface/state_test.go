package surface

import (
	"testing"
	"time"

	"github.com/merov/graft/internal/player"
)

func TestVisibilityHidesAfterIdleWhilePlaying(t *testing.T) {
	var v VisibilityMachine
	base := time.Now()

	v.OnActivity(base)
	if !v.Visible() {
		t.Fatal("activity must show controls")
	}

	if v.Tick(base.Add(time.Second), true, 3*time.Second) {
		t.Fatal("hidden before the delay elapsed")
	}
	if !v.Tick(base.Add(4*time.Second), true, 3*time.Second) {
		t.Fatal("not hidden after the delay")
	}
	if v.Visible() {
		t.Fatal("still visible after demotion")
	}
}

func TestVisibilityNeverHidesWhilePaused(t *testing.T) {
	var v VisibilityMachine
	base := time.Now()

	v.OnPause()
	if v.Tick(base.Add(time.Hour), false, 3*time.Second) {
		t.Fatal("paused controls must not hide")
	}
	if !v.Visible() {
		t.Fatal("paused controls hidden")
	}
}

func TestVisibilityRearmsOnPlay(t *testing.T) {
	var v VisibilityMachine
	base := time.Now()

	v.OnPause()
	v.OnPlay(base)
	if v.Tick(base.Add(time.Second), true, 3*time.Second) {
		t.Fatal("timer not re-armed from resume moment")
	}
	if !v.Tick(base.Add(4*time.Second), true, 3*time.Second) {
		t.Fatal("controls stuck visible after resume")
	}
}

func TestDerive(t *testing.T) {
	var v VisibilityMachine
	v.OnActivity(time.Now())

	m := player.Model{
		Owned:   true,
		Playing: true,
		Handle:  player.MediaHandle{Volume: 0.5, Muted: false},
	}
	st := Derive(m, &v, 300, 600, NavState{PrevEnabled: true})

	if st.PlayIcon != "pause" {
		t.Fatalf("want pause icon while playing, got %q", st.PlayIcon)
	}
	if st.ProgressPct != 50 {
		t.Fatalf("want 50%%, got %g", st.ProgressPct)
	}
	if st.VolumePct != 50 {
		t.Fatalf("want volume 50%%, got %g", st.VolumePct)
	}
	if !st.PrevEnabled || st.NextEnabled {
		t.Fatalf("nav flags wrong: %+v", st)
	}
	if st.TimeLabel != "5:00 / 10:00" {
		t.Fatalf("want 5:00 / 10:00, got %q", st.TimeLabel)
	}
}

func TestDeriveUnknownDuration(t *testing.T) {
	var v VisibilityMachine
	st := Derive(player.Model{}, &v, 42, 0, NavState{})
	if st.ProgressPct != 0 {
		t.Fatalf("unknown duration must give zero progress, got %g", st.ProgressPct)
	}
}

func TestDeriveLoaderSuppressedOnFailure(t *testing.T) {
	var v VisibilityMachine
	st := Derive(player.Model{Loading: true, Failed: true}, &v, 0, 0, NavState{})
	if st.LoaderVisible {
		t.Fatal("loader shown alongside error state")
	}
	if !st.ErrorVisible {
		t.Fatal("error state not surfaced")
	}
}

func TestScrollStepRampsToMax(t *testing.T) {
	ramp := 2 * time.Second

	start := ScrollStep(60, 0, ramp, 6)
	if start != 60 {
		t.Fatalf("want base speed at hold start, got %g", start)
	}

	half := ScrollStep(60, time.Second, ramp, 6)
	if half <= start {
		t.Fatalf("speed not ramping: %g", half)
	}

	full := ScrollStep(60, 2*time.Second, ramp, 6)
	if full != 360 {
		t.Fatalf("want 6x base at ramp end, got %g", full)
	}

	beyond := ScrollStep(60, time.Minute, ramp, 6)
	if beyond != full {
		t.Fatalf("speed exceeded max factor: %g", beyond)
	}
}

func TestFormatTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-5, "0:00"},
	}
	for _, c := range cases {
		if got := FormatTime(c.seconds); got != c.want {
			t.Errorf("FormatTime(%g) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
