package prescription

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

func (s *Service) SaveTemplate(ctx context.Context, doctorID string, t Template) (Template, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return Template{}, apperr.Validation("template name is required")
	}
	if err := validateMedicines(t.Medicines); err != nil {
		return Template{}, err
	}
	t.ID = "tpl-" + uuid.NewString()
	t.DoctorID = doctorID
	t.CreatedAt = s.now()

	err := s.writer.Do(ctx, func(u *store.Unit) error {
		cur, err := templates.Load(ctx, u)
		if err != nil {
			return err
		}
		return templates.Stage(u, append(cur, t))
	})
	if err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID string) ([]Template, error) {
	all, err := templates.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(all))
	for _, t := range all {
		if t.DoctorID == doctorID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, doctorID, id string) error {
	return s.writer.Do(ctx, func(u *store.Unit) error {
		cur, err := templates.Load(ctx, u)
		if err != nil {
			return err
		}
		for i, t := range cur {
			if t.ID == id && t.DoctorID == doctorID {
				return templates.Stage(u, append(cur[:i:i], cur[i+1:]...))
			}
		}
		return apperr.NotFound("template", id)
	})
}
