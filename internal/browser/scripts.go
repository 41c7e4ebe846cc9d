package browser

import (
	"embed"
	"fmt"
	"sync"
)

//go:embed js/*.js
var scriptFS embed.FS

const (
	// ExtractLinksScript lists absolute link URLs found in the rendered DOM.
	ExtractLinksScript = "extract_links.js"
	// DismissOverlaysScript hides full-viewport overlays and keeps hiding them as the DOM changes.
	DismissOverlaysScript = "dismiss_overlays.js"
)

var (
	scriptMu    sync.RWMutex
	scriptCache = make(map[string]string)
)

// Script returns the embedded JS snippet with the given file name.
func Script(name string) (string, error) {
	scriptMu.RLock()
	s, ok := scriptCache[name]
	scriptMu.RUnlock()
	if ok {
		return s, nil
	}

	data, err := scriptFS.ReadFile("js/" + name)
	if err != nil {
		return "", fmt.Errorf("script %s: %w", name, err)
	}

	scriptMu.Lock()
	scriptCache[name] = string(data)
	scriptMu.Unlock()
	return string(data), nil
}

// MustScript is Script for the snippets bundled with this package.
func MustScript(name string) string {
	s, err := Script(name)
	if err != nil {
		panic(err)
	}
	return s
}
