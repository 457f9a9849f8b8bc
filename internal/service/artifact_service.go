package service

import (
	"context"

	"github.com/haatos/securegate/internal/store"
)

type ArtifactService struct {
	store store.ArtifactStore
}

func NewArtifactService(artifactStore store.ArtifactStore) *ArtifactService {
	return &ArtifactService{store: artifactStore}
}

func (s *ArtifactService) Upload(
	ctx context.Context,
	runID int64,
	jobKey, name string,
	payload []byte,
) (*store.Artifact, error) {
	return s.store.UploadArtifact(ctx, runID, jobKey, name, payload)
}

func (s *ArtifactService) Download(
	ctx context.Context,
	runID int64,
	name string,
) (*store.Artifact, error) {
	return s.store.DownloadArtifact(ctx, runID, name)
}

func (s *ArtifactService) ListRunArtifacts(
	ctx context.Context,
	runID int64,
) ([]store.Artifact, error) {
	return s.store.ListRunArtifacts(ctx, runID)
}
