package model

// DisplayCollection is a sidebar entry. It is either a persisted Collection
// or the virtual "All Public Repos" bucket (Virtual = true).
type DisplayCollection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count"`
	Virtual     bool   `json:"virtual,omitempty"`
}

// DisplayRepo is one row of a rendered repository list. Rows built from a
// collection membership carry ID and Note; rows read live from GitHub carry
// the GitHub metadata instead.
type DisplayRepo struct {
	ID          string `json:"id,omitempty"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Description string `json:"description"`
	Note        string `json:"note,omitempty"`
	URL         string `json:"url"`
	Language    string `json:"language,omitempty"`
	Stars       int    `json:"stars,omitempty"`
	Added       bool   `json:"added,omitempty"`
}

// DisplayRepoFromMembership converts a stored membership into a list row.
func DisplayRepoFromMembership(r CollectionRepo) DisplayRepo {
	return DisplayRepo{
		ID:          r.ID,
		Owner:       r.Owner,
		Name:        r.RepoName,
		FullName:    r.FullName,
		Description: r.Description,
		Note:        r.Note,
		URL:         "https://github.com/" + r.FullName,
	}
}
