package stages

import (
	"os"

	"github.com/jackzampolin/narrate/internal/pipeline"
)

// ArtifactStatus reports whether a stage artifact is on disk.
type ArtifactStatus struct {
	Artifact string `json:"artifact"`
	Exists   bool   `json:"exists"`
	Bytes    int64  `json:"bytes,omitempty"`
}

func (s *ArtifactStatus) IsComplete() bool { return s.Exists }
func (s *ArtifactStatus) Data() any        { return s }

func artifactStatus(bk *pipeline.Book, name string) *ArtifactStatus {
	st := &ArtifactStatus{Artifact: name}
	if info, err := os.Stat(bk.Path(name)); err == nil && !info.IsDir() {
		st.Exists = true
		st.Bytes = info.Size()
	}
	return st
}
