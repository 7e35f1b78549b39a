package cloudinary

import (
	"context"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client stores identity document scans.
type Client interface {
	UploadDocument(ctx context.Context, file io.Reader, folder, publicID string) (url, storedID string, err error)
}

// Documents are uploaded as private assets so the URL alone does not expose them.
const documentDeliveryType = "private"

var overwriteFalse = false

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

// UploadDocument uploads an image or PDF scan and returns its secure URL and public ID.
func (c *clientImpl) UploadDocument(ctx context.Context, file io.Reader, folder, publicID string) (string, string, error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
		Type:         documentDeliveryType,
		Overwrite:    &overwriteFalse,
	})
	if err != nil {
		return "", "", err
	}
	if result.Error.Message != "" {
		return "", "", &UploadError{Message: result.Error.Message}
	}
	return result.SecureURL, result.PublicID, nil
}

type UploadError struct {
	Message string
}

func (e *UploadError) Error() string { return "cloudinary upload: " + e.Message }

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
// It returns nil, nil when no cloud name is configured.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	if cloudName == "" {
		return nil, nil
	}
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		uploader:  up,
	}, nil
}
