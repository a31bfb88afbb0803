package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// fixturePattern selects reply files anywhere under the fixture directory.
const fixturePattern = "**/*.{json,md,txt}"

// numberedFixtureRe splits "planner.2.json" into model and sequence number.
var numberedFixtureRe = regexp.MustCompile(`^(.+)\.(\d+)\.(json|md|txt)$`)

// loadFixtures maps model names to their ordered replies: numbered files in
// numeric order, then the base file. JSON fixtures must be valid JSON.
func loadFixtures(dir string) (map[string][]string, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, fixturePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if path.Ext(name) == ".json" && !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in %s", name)
		}

		file := path.Base(name)
		if m := numberedFixtureRe.FindStringSubmatch(file); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][idx] = string(data)
			continue
		}
		base[strings.TrimSuffix(file, path.Ext(file))] = string(data)
	}

	fixtures := make(map[string][]string, len(base)+len(numbered))
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for i := range byIndex {
			indices = append(indices, i)
		}
		slices.Sort(indices)
		for _, i := range indices {
			fixtures[model] = append(fixtures[model], byIndex[i])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
