package gerrit

import (
	"context"
	"fmt"
	"time"

	"github.com/ryo246912/gerrit-bridge/internal/models"
)

// MockClient implements GerritClient for testing
type MockClient struct {
	// Control test behavior
	OpenChanges      []models.Change
	OpenChangesError error
	ChangesByID      map[string]*models.Change
	ChangesByRev     map[string]*models.Change
	LookupError      error
	VerifyAccepted   bool
	VerifyError      error
	ServerVersion    string
	Projects         []string
	ProjectsError    error
	User             *models.SystemUser
	UserError        error
	ConnectionError  error

	// Track method calls
	QueryOpenChangesCalls int
	VerifyChangeCalled    bool
	SystemUserCalled      bool

	// Store call arguments for verification
	LastProject      string
	LastBranch       string
	LastPass         bool
	LastChangeNumber int
	LastPatchNumber  int
	LastMessage      string
}

func (m *MockClient) QueryOpenChanges(ctx context.Context, project, branch string) ([]models.Change, error) {
	m.QueryOpenChangesCalls++
	m.LastProject = project
	m.LastBranch = branch
	return m.OpenChanges, m.OpenChangesError
}

func (m *MockClient) QueryChangeByID(ctx context.Context, id string) (*models.Change, error) {
	if m.LookupError != nil {
		return nil, m.LookupError
	}
	return m.ChangesByID[id], nil
}

func (m *MockClient) QueryChangeByRevision(ctx context.Context, revision string) (*models.Change, error) {
	if m.LookupError != nil {
		return nil, m.LookupError
	}
	return m.ChangesByRev[revision], nil
}

func (m *MockClient) VerifyChange(ctx context.Context, pass bool, changeNumber, patchNumber int, message string) (bool, error) {
	m.VerifyChangeCalled = true
	m.LastPass = pass
	m.LastChangeNumber = changeNumber
	m.LastPatchNumber = patchNumber
	m.LastMessage = message
	return m.VerifyAccepted, m.VerifyError
}

func (m *MockClient) Version(ctx context.Context) (string, error) {
	return m.ServerVersion, m.ConnectionError
}

func (m *MockClient) ListProjects(ctx context.Context) ([]string, error) {
	return m.Projects, m.ProjectsError
}

func (m *MockClient) IsProject(ctx context.Context, name string) (bool, error) {
	if m.ProjectsError != nil {
		return false, m.ProjectsError
	}
	for _, p := range m.Projects {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockClient) SystemUser(ctx context.Context, username string) (*models.SystemUser, error) {
	m.SystemUserCalled = true
	return m.User, m.UserError
}

func (m *MockClient) TestConnection(ctx context.Context) error {
	return m.ConnectionError
}

// Reset clears all tracking data for fresh test
func (m *MockClient) Reset() {
	m.QueryOpenChangesCalls = 0
	m.VerifyChangeCalled = false
	m.SystemUserCalled = false
	m.LastProject = ""
	m.LastBranch = ""
	m.LastPass = false
	m.LastChangeNumber = 0
	m.LastPatchNumber = 0
	m.LastMessage = ""
}

// AddChange registers a change for lookups by id and by current revision
func (m *MockClient) AddChange(c models.Change) {
	if m.ChangesByID == nil {
		m.ChangesByID = map[string]*models.Change{}
	}
	if m.ChangesByRev == nil {
		m.ChangesByRev = map[string]*models.Change{}
	}
	m.ChangesByID[c.ID] = &c
	m.ChangesByRev[c.LastRevision()] = &c
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// CreateTestChange builds an open change with a single current patch set
func CreateTestChange(number int, revision string, verification int, updatedMinutes int) models.Change {
	author := models.Identity{Name: fmt.Sprintf("Author %d", number), Email: fmt.Sprintf("author%d@example.com", number)}
	return models.Change{
		ID:                fmt.Sprintf("I%040d", number),
		Number:            number,
		Project:           "test-project",
		Branch:            "master",
		Subject:           fmt.Sprintf("Test change #%d", number),
		Owner:             models.Identity{Name: fmt.Sprintf("Owner %d", number), Username: fmt.Sprintf("owner%d", number)},
		CreatedOn:         baseTime,
		LastUpdate:        baseTime.Add(time.Duration(updatedMinutes) * time.Minute),
		Open:              true,
		Status:            models.StatusNew,
		VerificationScore: verification,
		CurrentPatchSet: models.PatchSet{
			Number:    1,
			Revision:  revision,
			Ref:       fmt.Sprintf("refs/changes/%02d/%d/1", number%100, number),
			Author:    &author,
			CreatedOn: baseTime,
			FileSets:  []models.FileSet{{Path: "src/Foo.java", Type: "MODIFIED"}},
		},
	}
}

// FakeRunner is a Runner that returns canned output per command
type FakeRunner struct {
	Outputs  map[string]string
	Errors   map[string]error
	Default  string
	Commands []string
}

func (f *FakeRunner) Run(ctx context.Context, command string) ([]byte, error) {
	f.Commands = append(f.Commands, command)
	if err, ok := f.Errors[command]; ok {
		return nil, err
	}
	if out, ok := f.Outputs[command]; ok {
		return []byte(out), nil
	}
	return []byte(f.Default), nil
}
