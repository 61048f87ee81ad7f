// Package model defines the data structures used throughout the application.
package model

import "time"

// Profile is the local record of a signed-in GitHub user.
//
// ID is the authentication identity (the GitHub numeric user id as a
// decimal string), so a profile is stable across GitHub username changes.
// GitHubUsername is the public routing key for /{username} and is unique
// case-insensitively.
type Profile struct {
	ID             string    `json:"id"`
	GitHubUsername string    `json:"githubUsername"`
	DisplayName    string    `json:"displayName"`
	AvatarURL      string    `json:"avatarUrl"`
	Bio            string    `json:"bio"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
