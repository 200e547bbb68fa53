// Package model defines the records exchanged with the face service.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultThreshold is the similarity score used when the caller supplies none.
const DefaultThreshold = 75.0

// MatchStatus is the verdict of a comparison.
type MatchStatus string

const (
	Match    MatchStatus = "MATCH"
	NotMatch MatchStatus = "NOT_MATCH"
)

// StatusFor applies the match rule: a score at or above the threshold matches.
func StatusFor(score, threshold float64) MatchStatus {
	if score >= threshold {
		return Match
	}
	return NotMatch
}

// BoundingBox locates a face within an image. On the wire it is a
// four-element array [x, y, width, height].
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// MarshalJSON encodes the box as [x, y, width, height].
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.Width, b.Height})
}

// UnmarshalJSON accepts the array form and, for older servers, an object
// with x/y/width/height keys.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 4 {
			return fmt.Errorf("bbox: expected 4 values, got %d", len(arr))
		}
		*b = BoundingBox{X: arr[0], Y: arr[1], Width: arr[2], Height: arr[3]}
		return nil
	}
	var obj struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	*b = BoundingBox{X: obj.X, Y: obj.Y, Width: obj.Width, Height: obj.Height}
	return nil
}

// FaceDetection is one face found in an image.
type FaceDetection struct {
	FaceID      string      `json:"face_id"`
	BoundingBox BoundingBox `json:"bbox"`
	Confidence  float64     `json:"confidence"`
	Age         *int        `json:"age,omitempty"`
	Gender      *string     `json:"gender,omitempty"`
	Quality     float64     `json:"quality"`
}

// Normalize clamps confidence and quality into [0, 1].
func (f *FaceDetection) Normalize() {
	f.Confidence = clamp01(f.Confidence)
	f.Quality = clamp01(f.Quality)
}

// UploadResult is returned by an image upload.
type UploadResult struct {
	ImageID    string          `json:"image_id"`
	FileName   string          `json:"file_name,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	StorageKey string          `json:"storage_key,omitempty"`
	FaceCount  int             `json:"face_count"`
	Faces      []FaceDetection `json:"faces"`
	UploadTime *time.Time      `json:"upload_time,omitempty"`
	Synthetic  bool            `json:"synthetic,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Normalize enforces the detection invariants and fills FaceCount.
func (u *UploadResult) Normalize() {
	for i := range u.Faces {
		u.Faces[i].Normalize()
	}
	if u.FaceCount == 0 {
		u.FaceCount = len(u.Faces)
	}
}

// DetectionResult is returned by face detection on an image that is not
// stored.
type DetectionResult struct {
	FaceCount int             `json:"face_count"`
	Faces     []FaceDetection `json:"faces"`
}

// Normalize enforces the detection invariants and fills FaceCount.
func (d *DetectionResult) Normalize() {
	for i := range d.Faces {
		d.Faces[i].Normalize()
	}
	if d.FaceCount == 0 {
		d.FaceCount = len(d.Faces)
	}
}

// ImageRecord is one stored image as listed by the service.
type ImageRecord struct {
	ID         string          `json:"_id"`
	FileName   string          `json:"file_name"`
	FileSize   int64           `json:"file_size"`
	StorageKey string          `json:"storage_key,omitempty"`
	FaceCount  int             `json:"face_count"`
	Faces      []FaceDetection `json:"faces"`
	UploadTime *time.Time      `json:"upload_time,omitempty"`
}

// ComparisonResult is the verdict for two faces.
type ComparisonResult struct {
	SimilarityScore     float64     `json:"similarity_score"`
	ThresholdUsed       float64     `json:"threshold_used"`
	MatchStatus         MatchStatus `json:"match_status"`
	ProbeConfidence     float64     `json:"probe_confidence"`
	CandidateConfidence float64     `json:"candidate_confidence"`
	Synthetic           bool        `json:"synthetic,omitempty"`
	Message             string      `json:"message,omitempty"`
}

// Normalize recomputes MatchStatus from score and threshold and clamps the
// confidences.
func (c *ComparisonResult) Normalize() {
	c.ProbeConfidence = clamp01(c.ProbeConfidence)
	c.CandidateConfidence = clamp01(c.CandidateConfidence)
	c.MatchStatus = StatusFor(c.SimilarityScore, c.ThresholdUsed)
}

// VerifyRequest compares two already uploaded images.
type VerifyRequest struct {
	Image1ID  string   `json:"image1_id"`
	Image2ID  string   `json:"image2_id"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Token is the credential issued by login and register.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Profile is the current user's account.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	APIKey    string     `json:"api_key"`
	Threshold float64    `json:"threshold"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
}

// ThresholdUpdate is the response to a threshold change.
type ThresholdUpdate struct {
	Message      string  `json:"message"`
	NewThreshold float64 `json:"new_threshold"`
}

// PasswordChange is the body of a password change.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UsageStats summarises the account's activity.
type UsageStats struct {
	TotalImages      int `json:"total_images"`
	TotalFaces       int `json:"total_faces"`
	TotalComparisons int `json:"total_comparisons"`
	TotalMatches     int `json:"total_matches"`
}

// APIKey is the account's programmatic credential.
type APIKey struct {
	APIKey string `json:"api_key"`
}

// StatusMessage is the generic acknowledgement body.
type StatusMessage struct {
	Message string `json:"message"`
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
