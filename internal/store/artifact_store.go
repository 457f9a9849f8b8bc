package store

import (
	"context"
	"time"
)

type ErrArtifactNotFound struct {
	Name string
}

func (e ErrArtifactNotFound) Error() string {
	return "artifact not found: " + e.Name
}

// Artifact is a named output blob of one job within a run. Names are flat
// and scoped to the run; re-uploading a name within a run overwrites.
type Artifact struct {
	ArtifactID    int64
	ArtifactRunID int64
	JobKey        string
	Name          string
	Payload       []byte
	Size          int64
	CreatedOn     time.Time
}

type ArtifactStore interface {
	UploadArtifact(context.Context, int64, string, string, []byte) (*Artifact, error)
	DownloadArtifact(context.Context, int64, string) (*Artifact, error)
	ListRunArtifacts(context.Context, int64) ([]Artifact, error)
}
