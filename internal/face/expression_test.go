package face

import (
	"testing"
	"time"
)

func TestDominant(t *testing.T) {
	tests := []struct {
		name      string
		expr      map[string]float64
		want      string
		wantScore float64
	}{
		{
			name:      "single category",
			expr:      map[string]float64{"neutral": 0.9},
			want:      "neutral",
			wantScore: 0.9,
		},
		{
			name:      "highest wins",
			expr:      map[string]float64{"neutral": 0.3, "happy": 0.6, "sad": 0.1},
			want:      "happy",
			wantScore: 0.6,
		},
		{
			name:      "tie broken by name",
			expr:      map[string]float64{"surprised": 0.5, "angry": 0.5},
			want:      "angry",
			wantScore: 0.5,
		},
		{
			name: "empty map",
			expr: map[string]float64{},
			want: "",
		},
		{
			name: "nil map",
			expr: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := Dominant(tt.expr)
			if got != tt.want {
				t.Errorf("Dominant() = %q, want %q", got, tt.want)
			}
			if score != tt.wantScore {
				t.Errorf("Dominant() score = %f, want %f", score, tt.wantScore)
			}
		})
	}
}

func TestExpressionTrackerMicro(t *testing.T) {
	tr := NewExpressionTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Neutral dominant, surprise spikes.
	st := tr.Update(map[string]float64{"neutral": 0.9, "surprised": 0.7}, t0)
	if st.Dominant != "neutral" {
		t.Fatalf("Dominant = %q, want neutral", st.Dominant)
	}
	if st.Micro != "" {
		t.Fatalf("Micro fired on the rising edge: %q", st.Micro)
	}

	// Spike collapses 300ms later: a completed micro-expression.
	st = tr.Update(map[string]float64{"neutral": 0.9, "surprised": 0.2}, t0.Add(300*time.Millisecond))
	if st.Micro != "surprised" {
		t.Errorf("Micro = %q, want surprised", st.Micro)
	}

	// A second update does not re-fire.
	st = tr.Update(map[string]float64{"neutral": 0.9, "surprised": 0.1}, t0.Add(500*time.Millisecond))
	if st.Micro != "" {
		t.Errorf("Micro re-fired: %q", st.Micro)
	}
}

func TestExpressionTrackerSlowRevertIsNotMicro(t *testing.T) {
	tr := NewExpressionTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr.Update(map[string]float64{"neutral": 0.9, "angry": 0.8}, t0)
	// Still high at 400ms, keeps the candidate alive.
	tr.Update(map[string]float64{"neutral": 0.9, "angry": 0.8}, t0.Add(400*time.Millisecond))
	// Collapses only after the window closed.
	st := tr.Update(map[string]float64{"neutral": 0.9, "angry": 0.2}, t0.Add(700*time.Millisecond))
	if st.Micro != "" {
		t.Errorf("Slow revert flagged as micro: %q", st.Micro)
	}
}

func TestExpressionTrackerSustainedSpikeStaysDisarmed(t *testing.T) {
	tr := NewExpressionTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// A sustained high confidence expires its candidate; the later fall must
	// not fire even though it happens shortly after the expiry.
	tr.Update(map[string]float64{"neutral": 0.9, "sad": 0.8}, t0)
	tr.Update(map[string]float64{"neutral": 0.9, "sad": 0.8}, t0.Add(600*time.Millisecond))
	tr.Update(map[string]float64{"neutral": 0.9, "sad": 0.8}, t0.Add(800*time.Millisecond))
	st := tr.Update(map[string]float64{"neutral": 0.9, "sad": 0.2}, t0.Add(900*time.Millisecond))
	if st.Micro != "" {
		t.Errorf("Sustained expression flagged as micro: %q", st.Micro)
	}
}

func TestExpressionTrackerDominantNeverMicro(t *testing.T) {
	tr := NewExpressionTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// happy rises as a non-dominant candidate, then takes dominance: the
	// candidate is discarded as an ordinary expression change.
	tr.Update(map[string]float64{"neutral": 0.9, "happy": 0.7}, t0)
	tr.Update(map[string]float64{"neutral": 0.3, "happy": 0.9}, t0.Add(100*time.Millisecond))
	st := tr.Update(map[string]float64{"neutral": 0.9, "happy": 0.2}, t0.Add(200*time.Millisecond))
	if st.Micro != "" {
		t.Errorf("Dominant transition flagged as micro: %q", st.Micro)
	}
}

func TestExpressionTrackerBoundaryDuration(t *testing.T) {
	tr := NewExpressionTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Collapse at exactly the max duration still counts.
	tr.Update(map[string]float64{"neutral": 0.9, "surprised": 0.7}, t0)
	st := tr.Update(map[string]float64{"neutral": 0.9, "surprised": 0.1}, t0.Add(microMaxDuration))
	if st.Micro != "surprised" {
		t.Errorf("Micro = %q, want surprised at the window boundary", st.Micro)
	}
}
