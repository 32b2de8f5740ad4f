// Copyright 2025 The Mnemosyne Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package skills implements multi-root skill discovery: a skill is a
// free-form text document with a short name and a body. Relevance is a
// keyword-overlap + filename-boost heuristic over a small content
// prefix.
package skills

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// prefixScanBytes is how much of a skill file's content is read for
// keyword-overlap scoring.
const prefixScanBytes = 500

// DefaultThreshold and DefaultMaxLoaded are the named discovery defaults.
const (
	DefaultThreshold = 0.60
	DefaultMaxLoaded = 7
)

// RelevanceLearner optionally reweights the filename-boost term when a
// relevance-learning port is present. It is an external, pluggable port;
// when nil, Index uses a fixed weight of 1.0.
type RelevanceLearner interface {
	// Weight returns the multiplier to apply to the filename-boost term
	// for the given skill path.
	Weight(path string) float64
}

// Match is one discovered skill, scored against a task's keywords.
type Match struct {
	Path           string
	RelevanceScore float64
	Keywords       []string
	Categories     []string
	SourceDir      string
	IsLocal        bool
}

// Index discovers and scores skill files across an ordered list of roots.
// The first root is local (project-scoped); every subsequent root is
// global. Safe to reuse across calls; holds no mutable state of its own.
type Index struct {
	Roots    []string
	Learner  RelevanceLearner
	Threshold float64
	MaxLoaded int
}

// New creates an Index over roots (first = local) with spec defaults.
func New(roots []string) *Index {
	return &Index{Roots: roots, Threshold: DefaultThreshold, MaxLoaded: DefaultMaxLoaded}
}

// Discover walks every root, scores each skill file against keywords,
// applies the local-root bonus, dedups by file name (local strictly
// shadows global), discards matches below Threshold, and returns the
// top MaxLoaded matches sorted by descending score.
func (idx *Index) Discover(keywords []string) ([]Match, error) {
	threshold := idx.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	maxLoaded := idx.MaxLoaded
	if maxLoaded <= 0 {
		maxLoaded = DefaultMaxLoaded
	}

	seen := make(map[string]bool) // by base file name, first-seen wins (roots walked in order)
	var matches []Match

	for rootIdx, root := range idx.Roots {
		isLocal := rootIdx == 0

		entries, err := discoverRoot(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for _, path := range entries {
			name := filepath.Base(path)
			if seen[name] {
				continue // a prior (more-local) root already claimed this name
			}

			content, err := readPrefix(path, prefixScanBytes)
			if err != nil {
				continue
			}

			score := score(keywords, content, name, idx.weightFor(path))
			if isLocal {
				score *= 1.1
				if score > 1.0 {
					score = 1.0
				}
			}
			if score < threshold {
				continue
			}

			seen[name] = true
			matches = append(matches, Match{
				Path:           path,
				RelevanceScore: score,
				Keywords:       keywords,
				Categories:     categoriesFor(name),
				SourceDir:      root,
				IsLocal:        isLocal,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].RelevanceScore > matches[j].RelevanceScore
	})
	if len(matches) > maxLoaded {
		matches = matches[:maxLoaded]
	}
	return matches, nil
}

func (idx *Index) weightFor(path string) float64 {
	if idx.Learner == nil {
		return 1.0
	}
	return idx.Learner.Weight(path)
}

// discoverRoot recursively enumerates every text skill file under root
// whose name does not start with "_".
func discoverRoot(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), "_") {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readPrefix(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return "", err
	}
	return string(buf[:read]), nil
}

// score computes relevance from keyword-overlap fraction over content
// plus a filename-keyword hit boost.
func score(keywords []string, content, filename string, weight float64) float64 {
	if len(keywords) == 0 {
		return 0
	}

	lowerContent := strings.ToLower(content)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lowerContent, strings.ToLower(kw)) {
			hits++
		}
	}
	fraction := float64(hits) / float64(len(keywords))

	boost := 0.0
	lowerName := strings.ToLower(filename)
	for _, kw := range keywords {
		if strings.Contains(lowerName, strings.ToLower(kw)) {
			boost = 0.2 * weight
			break
		}
	}

	total := fraction + boost
	if total > 1.0 {
		total = 1.0
	}
	return total
}

// categoriesFor derives coarse categories from a skill file's name, e.g.
// "skill-rust-async.md" -> ["rust", "async"].
func categoriesFor(filename string) []string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(name, "-")

	var categories []string
	for _, p := range parts {
		if p == "" || strings.EqualFold(p, "skill") {
			continue
		}
		categories = append(categories, p)
	}
	return categories
}
