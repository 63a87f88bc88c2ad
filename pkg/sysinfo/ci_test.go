package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearCIEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"CI", "GITHUB_ACTIONS", "GITHUB_SHA", "GITHUB_REF_NAME", "GITHUB_REF",
		"GITLAB_CI", "CI_COMMIT_SHA", "CI_COMMIT_REF_NAME",
		"JENKINS_URL", "GIT_COMMIT", "GIT_BRANCH",
		"CIRCLECI", "CIRCLE_SHA1", "CIRCLE_BRANCH",
	} {
		t.Setenv(key, "")
	}
}

func TestCollectCI(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want CIInfo
	}{
		{
			name: "not in ci",
			want: CIInfo{},
		},
		{
			name: "github actions",
			env: map[string]string{
				"GITHUB_ACTIONS":  "true",
				"GITHUB_SHA":      "abc123",
				"GITHUB_REF_NAME": "main",
			},
			want: CIInfo{CIRun: true, CIPlatform: "github", CommitHash: "abc123", Branch: "main"},
		},
		{
			name: "github actions ref fallback",
			env: map[string]string{
				"GITHUB_ACTIONS": "true",
				"GITHUB_REF":     "refs/heads/feature-x",
			},
			want: CIInfo{CIRun: true, CIPlatform: "github", Branch: "feature-x"},
		},
		{
			name: "gitlab",
			env: map[string]string{
				"GITLAB_CI":          "true",
				"CI_COMMIT_SHA":      "def456",
				"CI_COMMIT_REF_NAME": "develop",
			},
			want: CIInfo{CIRun: true, CIPlatform: "gitlab", CommitHash: "def456", Branch: "develop"},
		},
		{
			name: "jenkins strips origin prefix",
			env: map[string]string{
				"JENKINS_URL": "https://jenkins.example.net",
				"GIT_COMMIT":  "789abc",
				"GIT_BRANCH":  "origin/release",
			},
			want: CIInfo{CIRun: true, CIPlatform: "jenkins", CommitHash: "789abc", Branch: "release"},
		},
		{
			name: "circleci",
			env: map[string]string{
				"CIRCLECI":      "true",
				"CIRCLE_SHA1":   "0ff1ce",
				"CIRCLE_BRANCH": "main",
			},
			want: CIInfo{CIRun: true, CIPlatform: "circleci", CommitHash: "0ff1ce", Branch: "main"},
		},
		{
			name: "generic ci flag only",
			env:  map[string]string{"CI": "true"},
			want: CIInfo{CIRun: true, CIPlatform: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCIEnv(t)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			assert.Equal(t, &tt.want, CollectCI())
		})
	}
}
