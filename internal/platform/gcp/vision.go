package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Vision OCRs single images.
type Vision struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVision(ctx context.Context, log *logger.Logger) (*Vision, error) {
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{log: log.With("service", "gcp.Vision"), client: c}, nil
}

func (v *Vision) Close() error { return v.client.Close() }

// OCRImageBytes returns the full text annotation of img with whitespace collapsed.
func (v *Vision) OCRImageBytes(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	fta := r0.FullTextAnnotation
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return "", nil
	}
	return collapseWhitespace(fta.Text), nil
}
