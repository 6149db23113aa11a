package parser

import (
	"bytes"
	"strings"
)

// dynamicProbeBytes bounds how much of the document the detector
// inspects. Framework bootstrapping markers show up near the top of
// client-rendered pages.
const dynamicProbeBytes = 2048

var dynamicMarkers = []string{
	"<script",
	"window.__initial_state__",
	"data-reactroot",
	"ng-app",
	"id=\"__next\"",
	"data-v-app",
}

// LooksDynamic reports whether a document appears to be rendered
// client-side and is worth a headless pass.
func LooksDynamic(body []byte) bool {
	probe := body
	if len(probe) > dynamicProbeBytes {
		probe = probe[:dynamicProbeBytes]
	}
	head := strings.ToLower(string(bytes.ToValidUTF8(probe, nil)))
	for _, marker := range dynamicMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}
