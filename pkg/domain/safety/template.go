package safety

import (
	"fmt"
	"strings"
)

// Template identifies the Model Armor template a prompt is screened against.
type Template struct {
	ProjectID  string `mapstructure:"project_id"`
	Region     string `mapstructure:"region"`
	TemplateID string `mapstructure:"template_id"`
}

func (t Template) Validate() error {
	var missing []string
	if strings.TrimSpace(t.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if strings.TrimSpace(t.Region) == "" {
		missing = append(missing, "region")
	}
	if strings.TrimSpace(t.TemplateID) == "" {
		missing = append(missing, "template_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidTemplate, strings.Join(missing, ", "))
	}
	return nil
}
