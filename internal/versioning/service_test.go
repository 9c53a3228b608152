package versioning

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/events"
	"github.com/thebtf/promptvault/pkg/fingerprint"
	"github.com/thebtf/promptvault/pkg/models"
)

type recordedEvent struct {
	Data    interface{}
	Type    string
	OwnerID int64
}

type recordingPublisher struct {
	events []recordedEvent
	mu     sync.Mutex
}

func (p *recordingPublisher) Publish(ownerID int64, eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{OwnerID: ownerID, Type: eventType, Data: data})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ServiceSuite runs version operations against a fresh SQLite database.
type ServiceSuite struct {
	suite.Suite
	store     *gormdb.Store
	svc       *Service
	publisher *recordingPublisher
	ownerID   int64
	otherID   int64
	prompt    *models.Prompt
	initial   *models.Version
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     filepath.Join(s.T().TempDir(), "versions.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store

	users := gormdb.NewUserStore(store)
	owner, err := users.Create(s.ctx, "owner", "hash", "Owner", "")
	s.Require().NoError(err)
	other, err := users.Create(s.ctx, "other", "hash", "", "")
	s.Require().NoError(err)
	s.ownerID, s.otherID = owner.ID, other.ID

	s.publisher = &recordingPublisher{}
	s.svc = NewService(store, s.publisher, Options{})
	s.prompt, s.initial = s.seedPrompt("A")
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.store.Close()
}

// seedPrompt creates a prompt at 1.0.0 together with its initial version.
func (s *ServiceSuite) seedPrompt(final string) (*models.Prompt, *models.Version) {
	content := models.NewPromptContent()
	content.Title = "Greeter"
	content.FinalPrompt = final
	content.Tags = models.JSONStringArray{"demo"}
	hash := fingerprint.Compute(content.Fingerprint())

	var p *models.Prompt
	var v *models.Version
	err := s.store.Transaction(s.ctx, func(tx *gorm.DB) error {
		var err error
		p, err = gormdb.NewPromptStore(s.store).WithTx(tx).Create(s.ctx, s.ownerID, content, "1.0.0", 1, hash)
		if err != nil {
			return err
		}
		v, err = s.svc.RecordInitialVersion(s.ctx, tx, p, s.ownerID)
		return err
	})
	s.Require().NoError(err)
	return p, v
}

func (s *ServiceSuite) reload() *models.Prompt {
	p, err := gormdb.NewPromptStore(s.store).Get(s.ctx, s.prompt.ID, s.ownerID)
	s.Require().NoError(err)
	return p
}

// setFinal changes the live prompt content without versioning it.
func (s *ServiceSuite) setFinal(final string) {
	current := s.reload()
	content := current.PromptContent
	content.FinalPrompt = final
	err := gormdb.NewPromptStore(s.store).UpdateContent(s.ctx, current.ID, current.ContentHash, content,
		fingerprint.Compute(content.Fingerprint()), nil)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRecordInitialVersion() {
	s.Equal("1.0.0", s.initial.VersionNumber)
	s.Equal(models.VersionTagInitial, s.initial.VersionTag)
	s.Equal(models.VersionTypeInitial, s.initial.VersionType)
	s.Equal(int64(1), s.initial.ContentSize)
	s.Positive(s.initial.TokenCount)
}

func (s *ServiceSuite) TestCreateVersion() {
	s.setFinal("B")

	created, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{
		ChangeType:    "minor",
		ChangeSummary: "  rewrite  ",
		VersionTag:    "beta",
	})
	s.Require().NoError(err)
	s.Equal("1.1.0", created.VersionNumber)
	s.NotEmpty(created.CreatedAt)

	p := s.reload()
	s.Equal("1.1.0", p.CurrentVersion)
	s.Equal(2, p.TotalVersions)

	v, err := s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.ownerID, created.VersionID)
	s.Require().NoError(err)
	s.Equal("B", v.FinalPrompt)
	s.Equal("rewrite", v.ChangeSummary)
	s.Equal(models.VersionTypeManual, v.VersionType)
	s.Equal("beta", v.VersionTag)
	s.Equal(p.ContentHash, v.ContentHash)
	s.Equal("Owner", v.AuthorName)

	s.Equal([]string{events.TypeVersionCreated}, s.publisher.types())
}

func (s *ServiceSuite) TestCreateVersion_DefaultsToPatch() {
	created, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "tweak"})
	s.Require().NoError(err)
	s.Equal("1.0.1", created.VersionNumber)
}

func (s *ServiceSuite) TestCreateVersion_Validation() {
	_, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "   "})
	s.ErrorIs(err, models.ErrValidation)

	_, err = s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "x", ChangeType: "huge"})
	s.ErrorIs(err, models.ErrInvalidOperation)

	_, err = s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "x", VersionTag: "initial"})
	s.ErrorIs(err, models.ErrInvalidOperation)

	_, err = s.svc.CreateVersion(s.ctx, s.prompt.ID, s.otherID, models.CreateVersionRequest{ChangeSummary: "x"})
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)

	s.Equal(1, s.reload().TotalVersions)
	s.Empty(s.publisher.types())
}

func (s *ServiceSuite) TestGetVersionHistory() {
	for i := 0; i < 3; i++ {
		_, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "step"})
		s.Require().NoError(err)
	}

	history, err := s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.ownerID, 0, 0, "")
	s.Require().NoError(err)
	s.Equal(int64(4), history.Total)
	s.Equal(1, history.Page)
	s.Equal(DefaultHistoryLimit, history.Limit)
	s.Require().Len(history.Versions, 4)
	s.Equal("1.0.3", history.Versions[0].VersionNumber)
	s.Equal("1.0.0", history.Versions[3].VersionNumber)
	s.Equal("Owner", history.Versions[0].AuthorName)

	page, err := s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.ownerID, 2, 3, "")
	s.Require().NoError(err)
	s.Require().Len(page.Versions, 1)
	s.Equal("1.0.0", page.Versions[0].VersionNumber)

	tagged, err := s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.ownerID, 1, 10, models.VersionTagInitial)
	s.Require().NoError(err)
	s.Equal(int64(1), tagged.Total)

	_, err = s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.otherID, 1, 10, "")
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)
}

func (s *ServiceSuite) TestGetVersionHistory_ClampsLimit() {
	history, err := s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.ownerID, 1, MaxHistoryLimit+1, "")
	s.Require().NoError(err)
	s.Equal(DefaultHistoryLimit, history.Limit)
}

func (s *ServiceSuite) TestGetVersionDetail_NotFound() {
	_, err := s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.otherID, s.initial.ID)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)

	_, err = s.svc.GetVersionDetail(s.ctx, s.prompt.ID+1, s.ownerID, s.initial.ID)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)

	_, err = s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID+100)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)
}

func (s *ServiceSuite) TestCompareVersions() {
	s.setFinal("line one\nline two\n")
	created, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "expand"})
	s.Require().NoError(err)

	cmp, err := s.svc.CompareVersions(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID, created.VersionID)
	s.Require().NoError(err)
	s.Equal("1.0.0", cmp.From.VersionNumber)
	s.Equal("1.0.1", cmp.To.VersionNumber)
	s.True(cmp.Changes.FinalPromptChanged)
	s.False(cmp.Changes.TitleChanged)
	s.False(cmp.Changes.DescriptionChanged)
	s.False(cmp.Changes.TagsChanged)

	diff := cmp.Diff["final_prompt"]
	s.Equal("A", diff.From)
	s.Equal("line one\nline two\n", diff.To)
	s.Contains(diff.Unified, "--- v1.0.0")
	s.Contains(diff.Unified, "+++ v1.0.1")
	s.Contains(diff.Unified, "+line two")

	same, err := s.svc.CompareVersions(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID, s.initial.ID)
	s.Require().NoError(err)
	s.False(same.Changes.FinalPromptChanged)
	s.Empty(same.Diff["final_prompt"].Unified)

	_, err = s.svc.CompareVersions(s.ctx, s.prompt.ID, s.otherID, s.initial.ID, created.VersionID)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)
}

func (s *ServiceSuite) TestRollbackToVersion() {
	s.setFinal("B")
	_, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeType: "minor", ChangeSummary: "B"})
	s.Require().NoError(err)

	result, err := s.svc.RollbackToVersion(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID, "back to A")
	s.Require().NoError(err)
	s.Equal("1.0.0", result.NewVersion)
	s.Equal("1.0.0", result.RollbackToVersion)

	p := s.reload()
	s.Equal("1.0.0", p.CurrentVersion)
	s.Equal("A", p.FinalPrompt)
	s.Equal(2, p.TotalVersions)
	s.Equal(s.initial.ContentHash, p.ContentHash)

	history, err := s.svc.GetVersionHistory(s.ctx, s.prompt.ID, s.ownerID, 1, 10, "")
	s.Require().NoError(err)
	s.Equal(int64(2), history.Total)

	v, err := s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), v.RollbackCount)
	s.Equal(int64(1), v.UseCount)

	s.Contains(s.publisher.types(), events.TypeVersionRolledBack)
}

func (s *ServiceSuite) TestRollbackToVersion_NotFound() {
	_, err := s.svc.RollbackToVersion(s.ctx, s.prompt.ID, s.otherID, s.initial.ID, "")
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)
}

func (s *ServiceSuite) TestUpdateVersionTag() {
	created, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "x"})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.UpdateVersionTag(s.ctx, s.prompt.ID, s.ownerID, created.VersionID, " stable "))
	v, err := s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.ownerID, created.VersionID)
	s.Require().NoError(err)
	s.Equal("stable", v.VersionTag)
	s.Equal("1.0.1", v.VersionNumber)

	err = s.svc.UpdateVersionTag(s.ctx, s.prompt.ID, s.ownerID, created.VersionID, models.VersionTagInitial)
	s.ErrorIs(err, models.ErrInvalidOperation)

	err = s.svc.UpdateVersionTag(s.ctx, s.prompt.ID, s.otherID, created.VersionID, "mine")
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)

	s.Contains(s.publisher.types(), events.TypeVersionTagged)
}

func (s *ServiceSuite) TestDeleteVersion() {
	first, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "one"})
	s.Require().NoError(err)
	_, err = s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "two"})
	s.Require().NoError(err)
	s.Equal(3, s.reload().TotalVersions)

	s.Require().NoError(s.svc.DeleteVersion(s.ctx, s.prompt.ID, s.ownerID, first.VersionID))
	s.Equal(2, s.reload().TotalVersions)

	_, err = s.svc.GetVersionDetail(s.ctx, s.prompt.ID, s.ownerID, first.VersionID)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)

	err = s.svc.DeleteVersion(s.ctx, s.prompt.ID, s.ownerID, first.VersionID)
	s.ErrorIs(err, models.ErrNotFoundOrForbidden)
	s.Contains(s.publisher.types(), events.TypeVersionDeleted)
}

func (s *ServiceSuite) TestDeleteVersion_RefusesActive() {
	created, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "x"})
	s.Require().NoError(err)

	err = s.svc.DeleteVersion(s.ctx, s.prompt.ID, s.ownerID, created.VersionID)
	s.ErrorIs(err, models.ErrInvalidOperation)
	s.Equal(2, s.reload().TotalVersions)
}

func (s *ServiceSuite) TestDeleteVersion_RefusesInitial() {
	_, err := s.svc.CreateVersion(s.ctx, s.prompt.ID, s.ownerID, models.CreateVersionRequest{ChangeSummary: "x"})
	s.Require().NoError(err)

	// The initial version is no longer active but is still protected.
	err = s.svc.DeleteVersion(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID)
	s.ErrorIs(err, models.ErrInvalidOperation)

	// Retagging does not lift the protection.
	s.Require().NoError(s.svc.UpdateVersionTag(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID, "first"))
	err = s.svc.DeleteVersion(s.ctx, s.prompt.ID, s.ownerID, s.initial.ID)
	s.ErrorIs(err, models.ErrInvalidOperation)
}

func TestNormalizeChangeType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "patch"},
		{in: "patch", want: "patch"},
		{in: " Minor ", want: "minor"},
		{in: "MAJOR", want: "major"},
		{in: "initial", wantErr: true},
		{in: "big", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeChangeType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrInvalidOperation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameTags(t *testing.T) {
	assert.True(t, sameTags(nil, models.JSONStringArray{}))
	assert.True(t, sameTags(models.JSONStringArray{"a", "b"}, models.JSONStringArray{"b", "a"}))
	assert.False(t, sameTags(models.JSONStringArray{"a"}, models.JSONStringArray{"a", "b"}))
	assert.False(t, sameTags(models.JSONStringArray{"a", "b"}, models.JSONStringArray{"a"}))
}
