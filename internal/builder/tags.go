package builder

import (
	"github.com/go-git/go-git/v5"
)

const shortSHALength = 7

// Tags returns the image tags for name: name:latest, plus name:<short sha>
// when dir is inside a git repository with a HEAD commit.
func Tags(name, dir string) []string {
	tags := []string{name + ":latest"}
	if sha := headSHA(dir); sha != "" {
		tags = append(tags, name+":"+sha)
	}
	return tags
}

// headSHA returns the abbreviated HEAD commit of the repository containing
// dir, or "" when there is none.
func headSHA(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	sha := ref.Hash().String()
	if len(sha) > shortSHALength {
		sha = sha[:shortSHALength]
	}
	return sha
}
