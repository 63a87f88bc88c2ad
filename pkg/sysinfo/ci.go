package sysinfo

import (
	"os"
	"strings"
)

// CIInfo identifies the CI platform a run executed on, if any.
type CIInfo struct {
	CIRun      bool   `bson:"ci_run" json:"ci_run"`
	CIPlatform string `bson:"ci_platform,omitempty" json:"ci_platform,omitempty"`
	CommitHash string `bson:"commit_hash,omitempty" json:"commit_hash,omitempty"`
	Branch     string `bson:"branch,omitempty" json:"branch,omitempty"`
}

// CollectCI detects the CI environment from well-known variables. Platform
// checks are ordered; the first matching platform wins.
func CollectCI() *CIInfo {
	info := &CIInfo{}

	if os.Getenv("CI") != "" {
		info.CIRun = true
	}

	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		info.CIRun = true
		info.CIPlatform = "github"
		info.CommitHash = os.Getenv("GITHUB_SHA")
		info.Branch = os.Getenv("GITHUB_REF_NAME")

		if info.Branch == "" {
			info.Branch = strings.TrimPrefix(os.Getenv("GITHUB_REF"), "refs/heads/")
		}
	case os.Getenv("GITLAB_CI") == "true":
		info.CIRun = true
		info.CIPlatform = "gitlab"
		info.CommitHash = os.Getenv("CI_COMMIT_SHA")
		info.Branch = os.Getenv("CI_COMMIT_REF_NAME")
	case os.Getenv("JENKINS_URL") != "":
		info.CIRun = true
		info.CIPlatform = "jenkins"
		info.CommitHash = os.Getenv("GIT_COMMIT")
		info.Branch = strings.TrimPrefix(os.Getenv("GIT_BRANCH"), "origin/")
	case os.Getenv("CIRCLECI") == "true":
		info.CIRun = true
		info.CIPlatform = "circleci"
		info.CommitHash = os.Getenv("CIRCLE_SHA1")
		info.Branch = os.Getenv("CIRCLE_BRANCH")
	case info.CIRun:
		info.CIPlatform = "unknown"
	}

	return info
}
