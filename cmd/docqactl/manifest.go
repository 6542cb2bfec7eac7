package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/docqa/internal/language"
)

// document is a set of extracted pages ready for upload.
type document struct {
	Language    language.Tag
	Translation bool
	Pages       map[int]string
}

// A manifest lists a document's pages inline or as files relative to the
// manifest. Both forms may be mixed; a page may not appear in both.
//
//	language: Hindi
//	pages:
//	  1: "पहला पृष्ठ।"
//	files:
//	  2: page2.txt
type yamlManifest struct {
	Language    string         `yaml:"language"`
	Translation bool           `yaml:"translation"`
	Pages       map[int]string `yaml:"pages"`
	Files       map[int]string `yaml:"files"`
}

// TOML keys are always strings, so page numbers are parsed afterwards.
type tomlManifest struct {
	Language    string            `toml:"language"`
	Translation bool              `toml:"translation"`
	Pages       map[string]string `toml:"pages"`
	Files       map[string]string `toml:"files"`
}

// loadDocument reads a YAML or TOML manifest, or a directory of <n>.txt page
// files.
func loadDocument(path string) (*document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loadPageDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)

	var (
		lang        string
		translation bool
		pages       map[int]string
		files       map[int]string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var m yamlManifest
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		lang, translation, pages, files = m.Language, m.Translation, m.Pages, m.Files
	case ".toml":
		var m tomlManifest
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing %s: unknown key %s", path, undecoded[0])
		}
		if pages, err = pageNumbers(m.Pages); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if files, err = pageNumbers(m.Files); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		lang, translation = m.Language, m.Translation
	default:
		return nil, fmt.Errorf("unsupported manifest %s: want .yaml, .yml or .toml", path)
	}

	doc := &document{Translation: translation, Pages: make(map[int]string, len(pages)+len(files))}
	if doc.Language, err = parseOptionalLanguage(lang); err != nil {
		return nil, err
	}
	for n, text := range pages {
		if n < 1 {
			return nil, fmt.Errorf("page %d: pages are numbered from 1", n)
		}
		doc.Pages[n] = text
	}
	for n, file := range files {
		if n < 1 {
			return nil, fmt.Errorf("page %d: pages are numbered from 1", n)
		}
		if _, dup := doc.Pages[n]; dup {
			return nil, fmt.Errorf("page %d is listed both inline and as a file", n)
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		text, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading page %d: %w", n, err)
		}
		doc.Pages[n] = string(text)
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%s lists no pages", path)
	}
	return doc, nil
}

// loadPageDir reads every <n>.txt file in dir as page n.
func loadPageDir(dir string) (*document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	doc := &document{Pages: make(map[int]string)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".txt" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".txt"))
		if err != nil || n < 1 {
			continue
		}
		text, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		doc.Pages[n] = string(text)
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%s has no <n>.txt page files", dir)
	}
	return doc, nil
}

func pageNumbers(m map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("page key %q is not a page number", k)
		}
		out[n] = v
	}
	return out, nil
}

func parseOptionalLanguage(s string) (language.Tag, error) {
	if strings.TrimSpace(s) == "" {
		return language.None, nil
	}
	return language.Parse(s)
}
