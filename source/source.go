// Copyright 2025 Poiesic Systems
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


package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidIdentifier is returned for identifiers that cannot name a document.
var ErrInvalidIdentifier = errors.New("invalid document identifier")

// DocumentSource fetches the text of a provision.
// Implementations must be safe for concurrent use.
type DocumentSource interface {
	// Fetch returns the text for identifier. ok is false when the source
	// has no document for it.
	Fetch(ctx context.Context, identifier string) (text string, ok bool, err error)
}

// DirSource reads documents from text files under a root directory.
// The identifier "a/b/c" (after prefix stripping) maps to <root>/a/b/c.txt.
type DirSource struct {
	root   string
	prefix string
}

var _ DocumentSource = (*DirSource)(nil)

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithPrefix strips prefix from identifiers before mapping them to files.
func WithPrefix(prefix string) DirOption {
	return func(s *DirSource) {
		s.prefix = prefix
	}
}

// NewDirSource creates a source reading from root, which must be a directory.
func NewDirSource(root string, opts ...DirOption) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	s := &DirSource{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file that holds identifier.
func (s *DirSource) Path(identifier string) (string, error) {
	rel := strings.TrimSpace(identifier)
	if s.prefix != "" {
		rel = strings.TrimPrefix(rel, s.prefix)
	}
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)+".txt"), nil
}

// Fetch reads the document for identifier.
func (s *DirSource) Fetch(ctx context.Context, identifier string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	path, err := s.Path(identifier)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// MapSource serves documents from memory.
type MapSource map[string]string

var _ DocumentSource = MapSource(nil)

// Fetch returns the document stored under the trimmed identifier.
func (m MapSource) Fetch(ctx context.Context, identifier string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	text, ok := m[strings.TrimSpace(identifier)]
	return text, ok, nil
}
