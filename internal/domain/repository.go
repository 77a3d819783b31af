package domain

// Organization represents a GitHub organization being mirrored
type Organization struct {
	ID          int64   `json:"id"`
	NodeID      string  `json:"nodeId"`
	Login       string  `json:"login"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Description *string `json:"description"`
	AvatarURL   string  `json:"avatarUrl"`
	ReposURL    string  `json:"reposUrl"`
	MembersURL  string  `json:"membersUrl"`
}

// Repository represents a GitHub repository
type Repository struct {
	NodeID   string `json:"nodeId"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	URL      string `json:"url"`
	Owner    string `json:"owner"` // login used to address the repository on the API
}

// Member represents a GitHub organization member
type Member struct {
	NodeID    string `json:"nodeId"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// Branch is a branch head as listed by the remote
type Branch struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// Snapshot is the full mirrored state at one point in time
type Snapshot struct {
	Organizations []Organization `json:"orgs"`
	Members       []Member       `json:"members"`
	Repositories  []Repository   `json:"repos"`
	Commits       []Commit       `json:"commits"`
}
