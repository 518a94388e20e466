// Package content loads CV sources into titled sections.
package content

import (
	"bytes"
	"crypto/sha1"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"

	"cvrag/internal/domain"
)

//go:embed default_cv.yaml
var defaultCV []byte

// DefaultDocumentID identifies the embedded CV.
const DefaultDocumentID = "default-cv"

// ErrEmptySource is returned when a source yields no non-blank section.
var ErrEmptySource = errors.New("cv source has no content")

type yamlCV struct {
	Owner    string           `yaml:"owner"`
	Sections []domain.Section `yaml:"sections"`
}

// Default returns the embedded CV.
func Default() (domain.Document, error) {
	doc, err := parseYAML(defaultCV, DefaultDocumentID, "")
	if err != nil {
		return domain.Document{}, fmt.Errorf("embedded cv: %w", err)
	}
	return doc, nil
}

// Load reads the CV at path, dispatching on the file extension.
// An empty path returns the embedded CV. owner overrides the name found in the source.
func Load(path, owner string) (domain.Document, error) {
	var (
		doc domain.Document
		err error
	)
	if path == "" {
		doc, err = Default()
	} else {
		doc, err = loadFile(path)
	}
	if err != nil {
		return domain.Document{}, err
	}
	if owner != "" {
		doc.Owner = owner
	}
	doc.Sections = nonBlank(doc.Sections)
	if len(doc.Sections) == 0 {
		return domain.Document{}, fmt.Errorf("%s: %w", displayPath(path), ErrEmptySource)
	}
	return doc, nil
}

func loadFile(path string) (domain.Document, error) {
	id := hashString(path)
	title := titleFromPath(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Document{}, err
		}
		doc, err := parseYAML(data, id, path)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%s: %w", path, err)
		}
		return doc, nil
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Document{}, err
		}
		return domain.Document{ID: id, Path: path, Sections: parseMarkdown(data, title)}, nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Document{}, err
		}
		markdown, err := md.NewConverter("", true, nil).ConvertString(string(data))
		if err != nil {
			return domain.Document{}, fmt.Errorf("convert %s: %w", path, err)
		}
		return domain.Document{ID: id, Path: path, Sections: parseMarkdown([]byte(markdown), title)}, nil
	case ".pdf":
		body, err := readPDF(path)
		if err != nil {
			return domain.Document{}, err
		}
		return domain.Document{ID: id, Path: path, Sections: []domain.Section{{Title: title, Content: body}}}, nil
	case ".txt", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Document{}, err
		}
		return domain.Document{ID: id, Path: path, Sections: []domain.Section{{Title: title, Content: string(data)}}}, nil
	default:
		return domain.Document{}, fmt.Errorf("unsupported cv source %q", path)
	}
}

func parseYAML(data []byte, id, path string) (domain.Document, error) {
	var cv yamlCV
	if err := yaml.Unmarshal(data, &cv); err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: id, Path: path, Owner: cv.Owner, Sections: cv.Sections}, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf %s: %w", path, err)
	}
	return buf.String(), nil
}

func nonBlank(sections []domain.Section) []domain.Section {
	out := make([]domain.Section, 0, len(sections))
	for _, s := range sections {
		s.Title = strings.TrimSpace(s.Title)
		s.Content = strings.TrimSpace(s.Content)
		if s.Content == "" {
			continue
		}
		if s.Title == "" {
			s.Title = "CV Section"
		}
		out = append(out, s)
	}
	return out
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func displayPath(path string) string {
	if path == "" {
		return "embedded cv"
	}
	return path
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
