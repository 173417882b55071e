package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Catalog holds user-facing message templates keyed by dotted path
// ("replay.validation.too-short"). Embedded defaults load first, then any
// *.yaml in the override directory.
type Catalog struct {
    mu        sync.RWMutex
    data      map[string]string
    templates map[string]*template.Template
}

func New(overrideDir string) (*Catalog, error) {
    c := &Catalog{data: make(map[string]string), templates: make(map[string]*template.Template)}

    raw, err := fs.ReadFile(defaultFiles, defaultFile)
    if err != nil {
        return nil, fmt.Errorf("read embedded messages: %w", err)
    }
    flat, err := flatten(raw)
    if err != nil {
        return nil, fmt.Errorf("parse embedded messages: %w", err)
    }
    c.merge(flat)

    if strings.TrimSpace(overrideDir) != "" {
        if err := c.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    return c, nil
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read message dir: %w", err)
    }
    var files []string
    for _, e := range entries {
        if e.IsDir() { continue }
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if ext == ".yaml" || ext == ".yml" { files = append(files, e.Name()) }
    }
    sort.Strings(files)

    // a key may be overridden by one file only
    owner := make(map[string]string)
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := flatten(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k := range flat {
            if prev, ok := owner[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            owner[k] = name
        }
        c.merge(flat)
    }
    return nil
}

func (c *Catalog) merge(flat map[string]string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    for k, v := range flat {
        c.data[k] = v
        delete(c.templates, k)
    }
}

func flatten(b []byte) (map[string]string, error) {
    var root yaml.Node
    if err := yaml.Unmarshal(b, &root); err != nil {
        return nil, err
    }
    out := make(map[string]string)
    if len(root.Content) == 0 {
        return out, nil
    }
    if err := walk(root.Content[0], "", out); err != nil {
        return nil, err
    }
    return out, nil
}

func walk(n *yaml.Node, prefix string, out map[string]string) error {
    switch n.Kind {
    case yaml.MappingNode:
        for i := 0; i+1 < len(n.Content); i += 2 {
            key := n.Content[i].Value
            if prefix != "" { key = prefix + "." + key }
            if err := walk(n.Content[i+1], key, out); err != nil { return err }
        }
        return nil
    case yaml.ScalarNode:
        if prefix == "" { return errors.New("scalar without key") }
        if n.Tag != "!!str" {
            return fmt.Errorf("line %d: %s must be a string, got %s", n.Line, prefix, n.Tag)
        }
        out[prefix] = n.Value
        return nil
    default:
        return fmt.Errorf("line %d: unsupported value at %s", n.Line, prefix)
    }
}

// Has reports whether key has a template.
func (c *Catalog) Has(key string) bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    _, ok := c.data[key]
    return ok
}

// Render executes the template at key. Missing keys in data are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
    key = strings.TrimSpace(key)
    c.mu.RLock()
    t, cached := c.templates[key]
    text, ok := c.data[key]
    c.mu.RUnlock()
    if !ok || strings.TrimSpace(text) == "" {
        return "", fmt.Errorf("template not found: %s", key)
    }
    if !cached {
        var err error
        t, err = template.New(key).Option("missingkey=error").Parse(text)
        if err != nil { return "", err }
        c.mu.Lock()
        c.templates[key] = t
        c.mu.Unlock()
    }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}
