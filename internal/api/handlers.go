package api

import (
	"net/http"
	"strings"

	"github.com/thebtf/promptvault/internal/auth"
	"github.com/thebtf/promptvault/pkg/models"
)

func owner(r *http.Request) int64 {
	id, _ := auth.OwnerID(r.Context())
	return id
}

// Auth

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, session, "Registered")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, session, "Logged in")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.User(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, user, "")
}

// Prompts

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	favorite, err := queryBool(r, "is_favorite")
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := s.prompts.ListPrompts(r.Context(), owner(r), models.PromptListOptions{
		Keyword:    q.Get("keyword"),
		Tag:        q.Get("tag"),
		Sort:       models.PromptSort(q.Get("sort")),
		Page:       page,
		Limit:      limit,
		IsFavorite: favorite,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, list, "")
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var in models.PromptInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s.savePrompt(w, r, in)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in models.PromptInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.ID = &id
	s.savePrompt(w, r, in)
}

func (s *Server) savePrompt(w http.ResponseWriter, r *http.Request, in models.PromptInput) {
	result, err := s.prompts.SavePrompt(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, result, result.Message)
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.prompts.GetPromptDetail(r.Context(), id, owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, p, "")
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.prompts.DeletePrompt(r.Context(), id, owner(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil, "Prompt deleted")
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	favorite, err := s.prompts.ToggleFavorite(r.Context(), id, owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, map[string]bool{"is_favorite": favorite}, "")
}

func (s *Server) handleRecordUse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.prompts.RecordUse(r.Context(), id, owner(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil, "Use recorded")
}

// Versions

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	promptID, err := pathID(r, "promptID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.CreateVersionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.versions.CreateVersion(r.Context(), promptID, owner(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, created, "Version created")
}

func (s *Server) handleVersionHistory(w http.ResponseWriter, r *http.Request) {
	promptID, err := pathID(r, "promptID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := s.versions.GetVersionHistory(r.Context(), promptID, owner(r), page, limit, r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, history, "")
}

// versionPath parses the prompt and version ids of a version route.
func versionPath(r *http.Request) (promptID, versionID int64, err error) {
	if promptID, err = pathID(r, "promptID"); err != nil {
		return 0, 0, err
	}
	if versionID, err = pathID(r, "versionID"); err != nil {
		return 0, 0, err
	}
	return promptID, versionID, nil
}

func (s *Server) handleVersionDetail(w http.ResponseWriter, r *http.Request) {
	promptID, versionID, err := versionPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.versions.GetVersionDetail(r.Context(), promptID, owner(r), versionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, v, "")
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	promptID, versionID, err := versionPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.versions.DeleteVersion(r.Context(), promptID, owner(r), versionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil, "Version deleted")
}

type tagRequest struct {
	VersionTag string `json:"version_tag"`
}

func (s *Server) handleUpdateVersionTag(w http.ResponseWriter, r *http.Request) {
	promptID, versionID, err := versionPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.versions.UpdateVersionTag(r.Context(), promptID, owner(r), versionID, req.VersionTag); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil, "Version tag updated")
}

type rollbackRequest struct {
	ChangeSummary string `json:"change_summary"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	promptID, versionID, err := versionPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.versions.RollbackToVersion(r.Context(), promptID, owner(r), versionID, req.ChangeSummary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, result, "Rolled back to version "+result.RollbackToVersion)
}

func (s *Server) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	promptID, err := pathID(r, "promptID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryInt64(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryInt64(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmp, err := s.versions.CompareVersions(r.Context(), promptID, owner(r), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, cmp, "")
}

// Tags

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tags, err := s.prompts.ListTags(r.Context(), owner(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, tags, "")
}

func (s *Server) handlePopularTags(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tags, err := s.prompts.PopularTags(r.Context(), owner(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, tags, "")
}

type createTagRequest struct {
	TagName string `json:"tag_name"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tag, created, err := s.prompts.CreateTag(r.Context(), owner(r), strings.TrimSpace(req.TagName))
	if err != nil {
		writeError(w, r, err)
		return
	}
	message := "Tag already exists"
	if created {
		message = "Tag created"
	}
	writeOK(w, tag, message)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.prompts.DeleteTag(r.Context(), owner(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil, "Tag deleted")
}
