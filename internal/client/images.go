package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/model"
	"github.com/example/facesaas-client/internal/transport"
	"github.com/example/facesaas-client/internal/upload"
)

// ImageClient manages the user's stored images.
type ImageClient struct {
	core *core
}

// UploadFile validates f and uploads it. Rejected files never reach the
// network.
func (i *ImageClient) UploadFile(ctx context.Context, f upload.File, opts ...CallOption) (*model.UploadResult, error) {
	candidate, err := i.core.validator.Validate(ctx, f)
	if err != nil {
		return nil, rejection(err)
	}
	return i.Upload(ctx, candidate, opts...)
}

// Upload stores a validated image and returns its detected faces. While the
// service is unreachable a synthetic result is returned instead.
func (i *ImageClient) Upload(ctx context.Context, c *upload.Candidate, opts ...CallOption) (*model.UploadResult, error) {
	if c == nil {
		return nil, apierr.Validation("no image selected", nil)
	}
	o := applyOptions(opts)
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageValidated, Total: c.Size})

	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/images/upload",
		Encoding: transport.EncodingMultipart,
		Parts: []transport.Part{
			{Field: "file", FileName: c.FileName, ContentType: c.MimeType, Data: c.Data()},
		},
		Media:    true,
		Progress: o.progress,
	}

	var result model.UploadResult
	if err := i.core.call(ctx, "upload_image", req, &result); err != nil {
		if !i.core.shouldSimulate(ctx, err) {
			return nil, err
		}
		sim, simErr := i.core.sim.Upload(ctx, c.FileName)
		if simErr != nil {
			return nil, aborted(simErr)
		}
		i.core.simulated(req, err, o.progress)
		return sim, nil
	}
	result.Normalize()
	transport.Emit(o.progress, transport.Progress{Stage: transport.StageCompleted})
	return &result, nil
}

// List returns the user's images. It never falls back.
func (i *ImageClient) List(ctx context.Context) ([]model.ImageRecord, error) {
	req := transport.Request{Method: http.MethodGet, Path: "/images/my-images"}
	var records []model.ImageRecord
	if err := i.core.call(ctx, "list_images", req, &records); err != nil {
		return nil, err
	}
	for r := range records {
		for f := range records[r].Faces {
			records[r].Faces[f].Normalize()
		}
		if records[r].FaceCount == 0 {
			records[r].FaceCount = len(records[r].Faces)
		}
	}
	if records == nil {
		records = []model.ImageRecord{}
	}
	return records, nil
}

// Delete removes one stored image.
func (i *ImageClient) Delete(ctx context.Context, imageID string) error {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return apierr.Validation("image id is required", nil)
	}
	req := transport.Request{
		Method: http.MethodDelete,
		Path:   "/images/" + url.PathEscape(imageID),
		Route:  "/images/{id}",
	}
	return i.core.call(ctx, "delete_image", req, nil)
}
