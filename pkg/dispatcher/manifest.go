package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/kombi/pkg/procedure"
)

// FarmDirEnv names the spool directory of the manifest backend.
const FarmDirEnv = "KOMBI_FARM_DIR"

// OptionFarmDir overrides FarmDirEnv for one render farm dispatcher.
const OptionFarmDir = "farmDir"

// Manifest is the document the manifest backend spools for every job.
type Manifest struct {
	ID  string `yaml:"id"`
	Job `yaml:",inline"`
}

// ManifestBackend spools one YAML manifest per job for an external farm
// submitter to pick up.
type ManifestBackend struct {
	Dir string
}

// NewManifestBackend returns a backend spooling to dir, falling back to
// $KOMBI_FARM_DIR and then to a kombi-farm directory under the temp base.
func NewManifestBackend(dir string) *ManifestBackend {
	if dir == "" {
		dir = os.Getenv(FarmDirEnv)
	}
	if dir == "" {
		dir = filepath.Join(procedure.TempBase(), "kombi-farm")
	}
	return &ManifestBackend{Dir: dir}
}

// Submit implements Backend.
func (b *ManifestBackend) Submit(_ context.Context, job *Job) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(Manifest{ID: id.String(), Job: *job})
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(b.ManifestPath(id.String()), data, 0o644); err != nil {
		return "", err
	}
	return id.String(), nil
}

// ManifestPath returns where the manifest of job id is spooled.
func (b *ManifestBackend) ManifestPath(id string) string {
	return filepath.Join(b.Dir, id+".yaml")
}

// LoadManifest reads a spooled manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}
