package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/model"
	"github.com/example/facesaas-client/internal/transport"
	"github.com/example/facesaas-client/internal/upload"
)

// FaceClient runs detection and comparison.
type FaceClient struct {
	core *core
}

// DetectFile validates f and runs Detect on it.
func (fc *FaceClient) DetectFile(ctx context.Context, f upload.File, opts ...CallOption) (*model.DetectionResult, error) {
	candidate, err := fc.core.validator.Validate(ctx, f)
	if err != nil {
		return nil, rejection(err)
	}
	return fc.Detect(ctx, candidate, opts...)
}

// Detect finds faces in an image without storing it. Detection has no
// simulated counterpart, so failures are always returned.
func (fc *FaceClient) Detect(ctx context.Context, c *upload.Candidate, opts ...CallOption) (*model.DetectionResult, error) {
	if c == nil {
		return nil, apierr.Validation("no image selected", nil)
	}
	o := applyOptions(opts)
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageValidated, Total: c.Size})

	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/faces/detect",
		Encoding: transport.EncodingMultipart,
		Parts: []transport.Part{
			{Field: "image", FileName: c.FileName, ContentType: c.MimeType, Data: c.Data()},
		},
		Media:    true,
		Progress: o.progress,
	}
	var result model.DetectionResult
	if err := fc.core.call(ctx, "detect_faces", req, &result); err != nil {
		return nil, err
	}
	result.Normalize()
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageCompleted})
	return &result, nil
}

// CompareFiles validates both files and runs Compare on them.
func (fc *FaceClient) CompareFiles(ctx context.Context, probe, candidate upload.File, threshold float64, opts ...CallOption) (*model.ComparisonResult, error) {
	if err := validThreshold(threshold); err != nil {
		return nil, err
	}
	first, err := fc.core.validator.Validate(ctx, probe)
	if err != nil {
		return nil, rejection(err)
	}
	second, err := fc.core.validator.Validate(ctx, candidate)
	if err != nil {
		return nil, rejection(err)
	}
	return fc.Compare(ctx, first, second, threshold, opts...)
}

// Compare judges whether two images show the same person. While the
// service is unreachable a synthetic verdict is returned instead.
func (fc *FaceClient) Compare(ctx context.Context, probe, candidate *upload.Candidate, threshold float64, opts ...CallOption) (*model.ComparisonResult, error) {
	if probe == nil || candidate == nil {
		return nil, apierr.Validation("two images are required", nil)
	}
	if err := validThreshold(threshold); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageValidated, Total: probe.Size + candidate.Size})

	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/faces/compare",
		Encoding: transport.EncodingMultipart,
		Parts: []transport.Part{
			{Field: "image1", FileName: probe.FileName, ContentType: probe.MimeType, Data: probe.Data()},
			{Field: "image2", FileName: candidate.FileName, ContentType: candidate.MimeType, Data: candidate.Data()},
		},
		Form:     map[string]string{"threshold": strconv.FormatFloat(threshold, 'f', -1, 64)},
		Media:    true,
		Progress: o.progress,
	}

	var result comparisonReply
	if err := fc.core.call(ctx, "compare_faces", req, &result); err != nil {
		if !fc.core.shouldSimulate(ctx, err) {
			return nil, err
		}
		sim, simErr := fc.core.sim.Compare(ctx, threshold)
		if simErr != nil {
			return nil, aborted(simErr)
		}
		fc.core.simulated(req, err, o.progress)
		return sim, nil
	}
	out := result.resolve(threshold)
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageCompleted})
	return out, nil
}

// Verify compares two stored images by id. It falls back like Compare.
func (fc *FaceClient) Verify(ctx context.Context, vr model.VerifyRequest) (*model.ComparisonResult, error) {
	vr.Image1ID = strings.TrimSpace(vr.Image1ID)
	vr.Image2ID = strings.TrimSpace(vr.Image2ID)
	if vr.Image1ID == "" || vr.Image2ID == "" {
		return nil, apierr.Validation("two image ids are required", nil)
	}
	if vr.Threshold != nil {
		if err := validThreshold(*vr.Threshold); err != nil {
			return nil, err
		}
	}

	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/faces/verify",
		Encoding: transport.EncodingJSON,
		JSON:     vr,
	}

	var result comparisonReply
	if err := fc.core.call(ctx, "verify_faces", req, &result); err != nil {
		if !fc.core.shouldSimulate(ctx, err) {
			return nil, err
		}
		sim, simErr := fc.core.sim.Verify(ctx, vr)
		if simErr != nil {
			return nil, aborted(simErr)
		}
		fc.core.simulated(req, err, nil)
		return sim, nil
	}
	requested := model.DefaultThreshold
	if vr.Threshold != nil {
		requested = *vr.Threshold
	}
	return result.resolve(requested), nil
}

// comparisonReply tells a missing threshold_used apart from an explicit 0.
type comparisonReply struct {
	model.ComparisonResult
	ThresholdUsed *float64 `json:"threshold_used"`
}

// resolve fills in the requested threshold when the service did not report
// the one it applied, then normalizes the verdict against it.
func (r *comparisonReply) resolve(requested float64) *model.ComparisonResult {
	result := r.ComparisonResult
	result.ThresholdUsed = requested
	if r.ThresholdUsed != nil {
		result.ThresholdUsed = *r.ThresholdUsed
	}
	result.Normalize()
	return &result
}
