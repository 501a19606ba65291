package cli

import (
	"context"
	"testing"

	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
)

type doctorRepo struct {
	primary.DocumentRepository
	projects      []*models.Document
	installations map[string][]*models.Document
}

func (r *doctorRepo) GetProjects(ctx context.Context, opts models.GetOptions) ([]*models.Document, error) {
	return r.projects, nil
}

func (r *doctorRepo) GetInstallations(ctx context.Context, projectID string, templateFilter []string, opts models.GetOptions) ([]*models.Document, error) {
	return r.installations[projectID], nil
}

func TestFindDanglingChildren(t *testing.T) {
	repo := &doctorRepo{
		projects: []*models.Document{
			{ID: "p-1", Children: []string{"i-1", "i-2"}},
			{ID: "p-2", Children: []string{"i-3"}},
		},
		installations: map[string][]*models.Document{
			"p-1": {{ID: "i-1"}},
			"p-2": {{ID: "i-3"}},
		},
	}

	dangling, err := findDanglingChildren(context.Background(), repo)
	if err != nil {
		t.Fatalf("findDanglingChildren failed: %v", err)
	}
	if len(dangling) != 1 || dangling[0] != "p-1 -> i-2 not found" {
		t.Errorf("dangling = %v, want [p-1 -> i-2 not found]", dangling)
	}
}

func TestFindDanglingChildren_Clean(t *testing.T) {
	repo := &doctorRepo{
		projects:      []*models.Document{{ID: "p-1", Children: []string{}}},
		installations: map[string][]*models.Document{},
	}

	dangling, err := findDanglingChildren(context.Background(), repo)
	if err != nil {
		t.Fatalf("findDanglingChildren failed: %v", err)
	}
	if len(dangling) != 0 {
		t.Errorf("expected no dangling children, got %v", dangling)
	}
}
