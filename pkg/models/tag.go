package models

// Tag is a per-user label with a usage counter.
type Tag struct {
	TagName        string `json:"tag_name"`
	CreatedAt      string `json:"create_time"`
	ID             int64  `json:"id"`
	OwnerID        int64  `json:"user_id"`
	UseCount       int64  `json:"use_count"`
	CreatedAtEpoch int64  `json:"create_time_epoch"`
}

// User is an account that owns prompts.
type User struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"create_time"`
	ID        int64  `json:"id"`
}
