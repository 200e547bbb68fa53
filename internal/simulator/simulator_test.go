package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/facesaas-client/internal/model"
)

func TestUploadSatisfiesDetectionInvariants(t *testing.T) {
	sim := New(Config{Seed: 42})
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		res, err := sim.Upload(context.Background(), "face.png")
		if err != nil {
			t.Fatalf("Upload error: %v", err)
		}
		if !res.Synthetic || res.Message != Notice {
			t.Fatalf("expected synthetic marker, got %+v", res)
		}
		if res.FaceCount < 1 || res.FaceCount > 3 || res.FaceCount != len(res.Faces) {
			t.Fatalf("unexpected face count %d (%d faces)", res.FaceCount, len(res.Faces))
		}
		if seen[res.ImageID] {
			t.Fatalf("duplicate image id %s", res.ImageID)
		}
		seen[res.ImageID] = true
		for _, f := range res.Faces {
			if f.Confidence < 0 || f.Confidence > 1 || f.Quality < 0 || f.Quality > 1 {
				t.Fatalf("face out of range: %+v", f)
			}
			if seen[f.FaceID] {
				t.Fatalf("duplicate face id %s", f.FaceID)
			}
			seen[f.FaceID] = true
			box := f.BoundingBox
			if box.X < 0 || box.Y < 0 || box.X+box.Width > frameWidth || box.Y+box.Height > frameHeight {
				t.Fatalf("bbox outside frame: %+v", box)
			}
		}
	}
}

func TestCompareAppliesMatchRule(t *testing.T) {
	sim := New(Config{Seed: 7})
	for _, threshold := range []float64{0, 50, 75, 90, 100} {
		for i := 0; i < 50; i++ {
			res, err := sim.Compare(context.Background(), threshold)
			if err != nil {
				t.Fatalf("Compare error: %v", err)
			}
			if (res.MatchStatus == model.Match) != (res.SimilarityScore >= res.ThresholdUsed) {
				t.Fatalf("match rule violated: %+v", res)
			}
			if res.ThresholdUsed != threshold {
				t.Fatalf("expected threshold %f, got %f", threshold, res.ThresholdUsed)
			}
			if res.SimilarityScore < 0 || res.SimilarityScore > 100 {
				t.Fatalf("score out of range: %f", res.SimilarityScore)
			}
			if !res.Synthetic {
				t.Fatal("expected synthetic marker")
			}
		}
	}
}

func TestVerifyDefaultsThreshold(t *testing.T) {
	res, err := New(Config{Seed: 1}).Verify(context.Background(), model.VerifyRequest{Image1ID: "a", Image2ID: "b"})
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.ThresholdUsed != model.DefaultThreshold {
		t.Fatalf("expected default threshold, got %f", res.ThresholdUsed)
	}
}

func TestLatencyIsAppliedAndCancellable(t *testing.T) {
	sim := New(Config{UploadLatency: 30 * time.Millisecond, CompareLatency: time.Hour})

	start := time.Now()
	if _, err := sim.Upload(context.Background(), "a.png"); err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected artificial latency, took %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := sim.Compare(ctx, 75); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
