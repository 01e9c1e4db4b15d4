package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/storyreel/studio/internal/model"
)

// ObjectURLs resolves stored object keys to downloadable URLs.
type ObjectURLs interface {
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ArtifactService turns the object keys stored on a record into URLs.
type ArtifactService struct {
	generations *GenerationService
	urls        ObjectURLs
	expiry      time.Duration
}

func NewArtifactService(generations *GenerationService, urls ObjectURLs, expiry time.Duration) *ArtifactService {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &ArtifactService{generations: generations, urls: urls, expiry: expiry}
}

// Artifacts returns the artifacts of a job with every key resolved.
func (s *ArtifactService) Artifacts(ctx context.Context, jobID string) (*model.ArtifactsResponse, error) {
	rec, err := s.generations.FetchStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.ArtifactsResponse{JobID: rec.ID, Stage: rec.Stage, Artifacts: &model.Artifacts{}}
	if rec.Artifacts == nil {
		return resp, nil
	}

	src := rec.Artifacts
	out := resp.Artifacts
	if out.AudioURL, err = s.resolve(ctx, src.AudioURL); err != nil {
		return nil, err
	}
	if out.FinalVideoURL, err = s.resolve(ctx, src.FinalVideoURL); err != nil {
		return nil, err
	}
	if out.LipSyncVideoURL, err = s.resolve(ctx, src.LipSyncVideoURL); err != nil {
		return nil, err
	}
	for _, scene := range src.SceneVideos {
		url, err := s.resolve(ctx, scene.URL)
		if err != nil {
			return nil, err
		}
		out.SceneVideos = append(out.SceneVideos, model.SceneVideo{SceneIndex: scene.SceneIndex, URL: url})
	}
	return resp, nil
}

func (s *ArtifactService) resolve(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	url, err := s.urls.GetSignedURL(ctx, key, s.expiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return url, nil
}
