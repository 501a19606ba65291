package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/fieldstore/internal/models"
	"github.com/example/fieldstore/internal/ports/primary"
)

// mockDocumentRepository implements primary.DocumentRepository for testing.
// Methods not overridden panic through the nil embedded interface.
type mockDocumentRepository struct {
	primary.DocumentRepository

	projects      map[string]*models.Document
	installations map[string]*models.Document
	names         []string

	putProjectErr   error
	removeResponse  *primary.RemoveProjectResponse
	removeErr       error
	lastPut         *models.Document
	lastPutParent   string
	lastRemoved     string
	lastTemplates   []string
	notChildRemoval bool
}

func newMockDocumentRepository() *mockDocumentRepository {
	return &mockDocumentRepository{
		projects:      map[string]*models.Document{},
		installations: map[string]*models.Document{},
	}
}

func (m *mockDocumentRepository) GetProject(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "project", ID: id}
	}
	return p, nil
}

func (m *mockDocumentRepository) GetInstallation(ctx context.Context, id string, opts models.GetOptions) (*models.Document, error) {
	i, ok := m.installations[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "installation", ID: id}
	}
	return i, nil
}

func (m *mockDocumentRepository) GetProjects(ctx context.Context, opts models.GetOptions) ([]*models.Document, error) {
	var out []*models.Document
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockDocumentRepository) GetInstallations(ctx context.Context, projectID string, templateFilter []string, opts models.GetOptions) ([]*models.Document, error) {
	m.lastTemplates = templateFilter
	p, ok := m.projects[projectID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "project", ID: projectID}
	}
	out := []*models.Document{}
	for _, id := range p.Children {
		if inst, ok := m.installations[id]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *mockDocumentRepository) GetProjectDocumentNames(ctx context.Context) ([]string, error) {
	return m.names, nil
}

func (m *mockDocumentRepository) PutProject(ctx context.Context, doc *models.Document) (models.PutResult, error) {
	m.lastPut = doc
	if m.putProjectErr != nil {
		return models.PutResult{}, m.putProjectErr
	}
	return models.PutResult{ID: doc.ID, Rev: "1-abc"}, nil
}

func (m *mockDocumentRepository) PutInstallation(ctx context.Context, projectID string, doc *models.Document) (*primary.PutInstallationResponse, error) {
	m.lastPut = doc
	m.lastPutParent = projectID
	if _, ok := m.projects[projectID]; !ok {
		return &primary.PutInstallationResponse{Installation: models.PutResult{ID: doc.ID, Rev: "1-abc"}}, &models.NotFoundError{Kind: "project", ID: projectID}
	}
	return &primary.PutInstallationResponse{Installation: models.PutResult{ID: doc.ID, Rev: "1-abc"}, Parent: &models.UpsertResult{Updated: true}}, nil
}

func (m *mockDocumentRepository) RemoveProject(ctx context.Context, id string) (*primary.RemoveProjectResponse, error) {
	m.lastRemoved = id
	return m.removeResponse, m.removeErr
}

func (m *mockDocumentRepository) RemoveInstallation(ctx context.Context, projectID, id, rev string) (*primary.RemoveInstallationResponse, error) {
	m.lastRemoved = id
	if m.notChildRemoval {
		return &primary.RemoveInstallationResponse{}, nil
	}
	return &primary.RemoveInstallationResponse{Installation: &models.PutResult{ID: id, Rev: "2-def"}}, nil
}

var fixedNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func TestProjectAdapter_Create(t *testing.T) {
	repo := newMockDocumentRepository()
	repo.names = []string{"Site A"}
	var buf bytes.Buffer
	adapter := NewProjectAdapter(repo, &buf)
	adapter.now = func() time.Time { return fixedNow }

	doc, err := adapter.Create(context.Background(), "Site A")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if doc.Metadata.DocName != "Site A (1)" {
		t.Errorf("DocName = %q, want %q", doc.Metadata.DocName, "Site A (1)")
	}
	if doc.Rev != "1-abc" {
		t.Errorf("Rev = %q, want 1-abc", doc.Rev)
	}
	if !doc.Metadata.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", doc.Metadata.CreatedAt, fixedNow)
	}
	if !strings.Contains(buf.String(), "Created project") || !strings.Contains(buf.String(), "Site A (1)") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestProjectAdapter_Create_Errors(t *testing.T) {
	repo := newMockDocumentRepository()
	var buf bytes.Buffer
	adapter := NewProjectAdapter(repo, &buf)

	if _, err := adapter.Create(context.Background(), ""); err == nil {
		t.Error("expected error for empty name")
	}

	repo.putProjectErr = errors.New("disk full")
	if _, err := adapter.Create(context.Background(), "Site A"); err == nil {
		t.Error("expected error from repository")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestProjectAdapter_List(t *testing.T) {
	repo := newMockDocumentRepository()
	repo.projects["p-1"] = &models.Document{ID: "p-1", Type: models.DocTypeProject, Children: []string{"i-1", "i-2"}, Metadata: models.Metadata{DocName: "Site A", LastModifiedAt: fixedNow}}
	var buf bytes.Buffer
	adapter := NewProjectAdapter(repo, &buf)

	projects, err := adapter.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}

	out := buf.String()
	for _, want := range []string{"ID", "NAME", "p-1", "Site A", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestProjectAdapter_List_Empty(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewProjectAdapter(newMockDocumentRepository(), &buf)

	if _, err := adapter.List(context.Background()); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No projects found.") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestProjectAdapter_Show(t *testing.T) {
	repo := newMockDocumentRepository()
	repo.projects["p-1"] = &models.Document{ID: "p-1", Rev: "3-x", Type: models.DocTypeProject, Children: []string{"i-1", "gone"}, Metadata: models.Metadata{DocName: "Site A"}}
	repo.installations["i-1"] = &models.Document{ID: "i-1", Type: models.DocTypeInstallation, Metadata: models.Metadata{DocName: "Water heater", TemplateName: "qa_hpwh"}}
	var buf bytes.Buffer
	adapter := NewProjectAdapter(repo, &buf)

	if _, err := adapter.Show(context.Background(), "p-1"); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Project: p-1", "Site A", "3-x", "i-1 Water heater (qa_hpwh)", "1 child reference(s) not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestProjectAdapter_Show_NotFound(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewProjectAdapter(newMockDocumentRepository(), &buf)

	_, err := adapter.Show(context.Background(), "missing")
	if !models.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProjectAdapter_Delete(t *testing.T) {
	repo := newMockDocumentRepository()
	repo.projects["p-1"] = &models.Document{ID: "p-1", Type: models.DocTypeProject, Metadata: models.Metadata{DocName: "Site A"}}
	repo.removeResponse = &primary.RemoveProjectResponse{
		Children: []models.BulkResult{
			{ID: "i-1", Rev: "2-a"},
			{ID: "i-2", Err: errors.New("conflict")},
		},
	}
	var buf bytes.Buffer
	adapter := NewProjectAdapter(repo, &buf)

	if err := adapter.Delete(context.Background(), "p-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if repo.lastRemoved != "p-1" {
		t.Errorf("removed %q, want p-1", repo.lastRemoved)
	}

	out := buf.String()
	if !strings.Contains(out, "Failed to delete installation i-2") {
		t.Errorf("expected failed child in output: %q", out)
	}
	if strings.Contains(out, "installation i-1") {
		t.Errorf("successful child should not be reported: %q", out)
	}
	if !strings.Contains(out, "Deleted project p-1: Site A") {
		t.Errorf("expected confirmation: %q", out)
	}
}
