/*
Copyright © 2026 nelonmelons
*/

package main

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed videos.txt
var defaultVideos string

// VideoList is the ordered set of round clip URLs. The order is fixed
// for the life of the process; lobbies track their own cursor into it.
type VideoList struct {
	urls []string
}

// loadVideoList reads one URL per line from path, or falls back to the
// embedded default list when no path is given.
func loadVideoList(path string) (*VideoList, error) {
	data := defaultVideos
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading video list: %w", err)
		}
		data = string(raw)
	}

	var urls []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}

	return &VideoList{urls: urls}, nil
}

func (v *VideoList) At(i int) (string, bool) {
	if i < 0 || i >= len(v.urls) {
		return "", false
	}
	return v.urls[i], true
}

func (v *VideoList) Len() int {
	return len(v.urls)
}
