// Package simulator produces clearly labelled synthetic results that satisfy
// the same invariants as live ones, for use while the service is
// unreachable.
package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/facesaas-client/internal/model"
)

// Notice is attached to every synthetic result.
const Notice = "simulated result: the face service is unavailable"

const (
	frameWidth  = 640
	frameHeight = 480
)

// Config bounds the artificial latency of each operation.
type Config struct {
	UploadLatency  time.Duration
	CompareLatency time.Duration
	// Seed makes the output reproducible when non-zero.
	Seed uint64
}

// DefaultConfig mirrors the cost of the real operations.
func DefaultConfig() Config {
	return Config{UploadLatency: 2 * time.Second, CompareLatency: 3 * time.Second}
}

// Simulator is safe for concurrent use.
type Simulator struct {
	cfg Config
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// New builds a simulator.
func New(cfg Config) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{
		cfg: cfg,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Upload fabricates the result of uploading fileName: one to three faces.
func (s *Simulator) Upload(ctx context.Context, fileName string) (*model.UploadResult, error) {
	if err := wait(ctx, s.cfg.UploadLatency); err != nil {
		return nil, err
	}
	faces := s.faces()
	uploaded := s.now().UTC()
	return &model.UploadResult{
		ImageID:    "sim_img_" + uuid.NewString(),
		FileName:   fileName,
		StorageKey: "simulated/" + fileName,
		FaceCount:  len(faces),
		Faces:      faces,
		UploadTime: &uploaded,
		Synthetic:  true,
		Message:    Notice,
	}, nil
}

// Compare fabricates a comparison judged against threshold. A threshold
// outside [0, 100] falls back to the default.
func (s *Simulator) Compare(ctx context.Context, threshold float64) (*model.ComparisonResult, error) {
	if err := wait(ctx, s.cfg.CompareLatency); err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 100 {
		threshold = model.DefaultThreshold
	}

	s.mu.Lock()
	score := round1(40 + s.rnd.Float64()*59.9)
	probe := round2(0.90 + s.rnd.Float64()*0.09)
	candidate := round2(0.90 + s.rnd.Float64()*0.09)
	s.mu.Unlock()

	return &model.ComparisonResult{
		SimilarityScore:     score,
		ThresholdUsed:       threshold,
		MatchStatus:         model.StatusFor(score, threshold),
		ProbeConfidence:     probe,
		CandidateConfidence: candidate,
		Synthetic:           true,
		Message:             Notice,
	}, nil
}

// Verify fabricates a comparison of two stored images.
func (s *Simulator) Verify(ctx context.Context, req model.VerifyRequest) (*model.ComparisonResult, error) {
	threshold := model.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	return s.Compare(ctx, threshold)
}

func (s *Simulator) faces() []model.FaceDetection {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 1 + s.rnd.IntN(3)
	faces := make([]model.FaceDetection, 0, n)
	for i := 0; i < n; i++ {
		width := 80 + s.rnd.Float64()*120
		height := width * (1.1 + s.rnd.Float64()*0.2)
		age := 18 + s.rnd.IntN(48)
		gender := "female"
		if s.rnd.IntN(2) == 0 {
			gender = "male"
		}
		faces = append(faces, model.FaceDetection{
			FaceID: uuid.NewString(),
			BoundingBox: model.BoundingBox{
				X:      math.Floor(s.rnd.Float64() * (frameWidth - width)),
				Y:      math.Floor(s.rnd.Float64() * (frameHeight - height)),
				Width:  math.Floor(width),
				Height: math.Floor(height),
			},
			Confidence: round2(0.85 + s.rnd.Float64()*0.14),
			Age:        &age,
			Gender:     &gender,
			Quality:    round2(0.60 + s.rnd.Float64()*0.35),
		})
	}
	return faces
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
