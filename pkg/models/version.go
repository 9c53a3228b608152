package models

// Version tags and types with special meaning.
const (
	VersionTagInitial  = "initial"
	VersionTypeInitial = "initial"
	VersionTypeManual  = "manual"
	ChangeTypeInitial  = "initial"
)

// DefaultAutoChangeSummary is recorded when a save creates a version without
// a summary.
const DefaultAutoChangeSummary = "Content updated"

// Version is an immutable snapshot of a prompt's content. Only the tag, the
// counters and the deleted flag change after creation.
type Version struct {
	PromptContent
	VersionNumber  string `json:"version_number"`
	VersionTag     string `json:"version_tag"`
	VersionType    string `json:"version_type"`
	ChangeType     string `json:"change_type"`
	ChangeSummary  string `json:"change_summary"`
	ChangeLog      string `json:"change_log"`
	ContentHash    string `json:"content_hash"`
	AuthorName     string `json:"author_name"`
	AuthorAvatar   string `json:"author_avatar"`
	CreatedAt      string `json:"create_time"`
	ID             int64  `json:"id"`
	PromptID       int64  `json:"prompt_id"`
	CreatedBy      int64  `json:"created_by"`
	ContentSize    int64  `json:"content_size"`
	TokenCount     int64  `json:"token_count"`
	UseCount       int64  `json:"use_count"`
	RollbackCount  int64  `json:"rollback_count"`
	CreatedAtEpoch int64  `json:"create_time_epoch"`
	IsDeleted      bool   `json:"is_deleted"`
}

// VersionSummary is a history row without the content snapshot.
type VersionSummary struct {
	VersionNumber  string `json:"version_number"`
	VersionTag     string `json:"version_tag"`
	VersionType    string `json:"version_type"`
	ChangeSummary  string `json:"change_summary"`
	AuthorName     string `json:"author_name"`
	AuthorAvatar   string `json:"author_avatar"`
	CreatedAt      string `json:"create_time"`
	ID             int64  `json:"id"`
	CreatedBy      int64  `json:"created_by"`
	ContentSize    int64  `json:"content_size"`
	UseCount       int64  `json:"use_count"`
	CreatedAtEpoch int64  `json:"create_time_epoch"`
}

// VersionHistory is one page of a prompt's history.
type VersionHistory struct {
	Versions []*VersionSummary `json:"versions"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// CreateVersionRequest carries the caller-supplied metadata of a manual
// version.
type CreateVersionRequest struct {
	ChangeType    string `json:"change_type"`
	ChangeSummary string `json:"change_summary"`
	ChangeLog     string `json:"change_log,omitempty"`
	VersionTag    string `json:"version_tag,omitempty"`
}

// CreatedVersion is returned after a version was recorded.
type CreatedVersion struct {
	VersionNumber string `json:"version_number"`
	CreatedAt     string `json:"create_time"`
	VersionID     int64  `json:"version_id"`
}

// RollbackResult reports the version a prompt was rolled back to. Both
// fields carry the target's number since rollback records no new version.
type RollbackResult struct {
	NewVersion        string `json:"new_version"`
	RollbackToVersion string `json:"rollback_to_version"`
}

// VersionChanges flags which tracked fields differ between two versions.
type VersionChanges struct {
	TitleChanged       bool `json:"title_changed"`
	DescriptionChanged bool `json:"description_changed"`
	FinalPromptChanged bool `json:"final_prompt_changed"`
	TagsChanged        bool `json:"tags_changed"`
}

// TextDiff holds both sides of a field plus a unified diff between them.
type TextDiff struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Unified string `json:"unified,omitempty"`
}

// VersionComparison is the result of comparing two versions.
type VersionComparison struct {
	From    *Version            `json:"from_version"`
	To      *Version            `json:"to_version"`
	Diff    map[string]TextDiff `json:"diff"`
	Changes VersionChanges      `json:"changes"`
}
