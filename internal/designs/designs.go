// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package designs reads generated HTML design files out of a session's
// working directory.
package designs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const screensDirName = "screens"

// File is one HTML design found in a session directory.
type File struct {
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	ScreenType string `json:"screen_type"`
	HTML       string `json:"html"`
	ModifiedAt int64  `json:"modified_at"`
}

// extractHTMLAttr pulls the first value of an HTML attribute out of raw
// markup. Attribute names come from our own constants so building the
// pattern from them is safe.
func extractHTMLAttr(html, attr string) string {
	re, err := regexp.Compile(fmt.Sprintf(`%s=["']([^"']+)["']`, regexp.QuoteMeta(attr)))
	if err != nil {
		return ""
	}

	match := re.FindStringSubmatch(html)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// titleFromFilename turns "pricing-page.html" into "Pricing Page".
func titleFromFilename(filename string) string {
	base := strings.TrimSuffix(filename, ".html")
	words := strings.Split(base, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// LoadSessionDesigns scans a session's working directory and its screens/
// subfolder for HTML designs, oldest first. Duplicated filenames keep the
// copy found first.
func LoadSessionDesigns(sessionCwd string) []File {
	var designs []File
	seen := make(map[string]struct{})

	processDir := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}

		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".html" {
				continue
			}
			if _, ok := seen[entry.Name()]; ok {
				continue
			}

			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			html := string(data)

			title := extractHTMLAttr(html, "data-title")
			if title == "" {
				title = titleFromFilename(entry.Name())
			}

			screenType := extractHTMLAttr(html, "data-screen-type")
			if screenType == "" {
				screenType = "web"
			}

			var modifiedAt int64
			if info, err := entry.Info(); err == nil {
				modifiedAt = info.ModTime().Unix()
			}

			seen[entry.Name()] = struct{}{}
			designs = append(designs, File{
				Filename:   entry.Name(),
				Title:      title,
				ScreenType: screenType,
				HTML:       html,
				ModifiedAt: modifiedAt,
			})
		}
	}

	processDir(sessionCwd)
	processDir(filepath.Join(sessionCwd, screensDirName))

	sort.SliceStable(designs, func(i, j int) bool {
		return designs[i].ModifiedAt < designs[j].ModifiedAt
	})

	if designs == nil {
		designs = []File{}
	}
	return designs
}

// ResolvePath locates a design file by bare filename inside a session
// directory, checking the root first and then screens/. The filename must
// not contain path separators.
func ResolvePath(sessionCwd, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", errors.Errorf("invalid design filename: %s", filename)
	}

	rootPath := filepath.Join(sessionCwd, filename)
	if _, err := os.Stat(rootPath); err == nil {
		return rootPath, nil
	}

	return filepath.Join(sessionCwd, screensDirName, filename), nil
}

// Delete removes a design file from disk.
func Delete(filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return errors.Wrapf(err, "design file not found: %s", filePath)
	}
	return errors.Wrapf(os.Remove(filePath), "failed to delete %s", filePath)
}

// CopySessionDesigns copies every HTML design in the source session's
// screens/ folder into the destination session's. Returns how many files
// were copied.
func CopySessionDesigns(sourceCwd, destCwd string) (int, error) {
	sourceScreens := filepath.Join(sourceCwd, screensDirName)
	destScreens := filepath.Join(destCwd, screensDirName)

	if err := os.MkdirAll(destScreens, 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create screens directory")
	}

	entries, err := os.ReadDir(sourceScreens)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read source screens directory")
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".html" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(sourceScreens, entry.Name()))
		if err != nil {
			return copied, errors.Wrapf(err, "failed to read %s", entry.Name())
		}
		if err := os.WriteFile(filepath.Join(destScreens, entry.Name()), data, 0o644); err != nil {
			return copied, errors.Wrapf(err, "failed to copy %s", entry.Name())
		}
		copied++
	}

	return copied, nil
}
