package api

import (
	_ "embed"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

// Example is one entry of the experiment idea catalog.
type Example struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category" json:"category"`
	Difficulty  string `yaml:"difficulty" json:"difficulty"`
}

// LoadExamples returns the embedded experiment catalog. It is parsed on
// first use; callers must not modify the result.
var LoadExamples = sync.OnceValues(func() ([]Example, error) {
	var doc struct {
		Examples []Example `yaml:"examples"`
	}
	if err := yaml.Unmarshal(examplesYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse examples catalog: %w", err)
	}
	return doc.Examples, nil
})

// Examples handles GET /api/experiment-examples.
func (h *Handler) Examples(w http.ResponseWriter, _ *http.Request) {
	examples, err := LoadExamples()
	if err != nil {
		h.logger.Error("failed to load examples", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load examples")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"examples": examples})
}
