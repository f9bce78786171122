package compose

import (
	"sync"

	"github.com/dshills/stormline/internal/renderer/core"
)

// Layer supplies the rendered text of one part of the frame. The command
// layer's text is expected to be syntax-highlighted already.
type Layer interface {
	// RenderedContent returns at most maxLen bytes of rendered text.
	RenderedContent(maxLen int) (string, error)
}

// TextLayer is a Layer holding text set by its owner.
type TextLayer struct {
	mu    sync.RWMutex
	text  string
	ready bool
}

// NewTextLayer creates a ready layer holding text.
func NewTextLayer(text string) *TextLayer {
	return &TextLayer{text: text, ready: true}
}

// Set replaces the layer's text and marks it ready.
func (l *TextLayer) Set(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = text
	l.ready = true
}

// Reset empties the layer and marks it not ready.
func (l *TextLayer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = ""
	l.ready = false
}

// RenderedContent returns the layer text.
func (l *TextLayer) RenderedContent(maxLen int) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.ready {
		return "", core.ErrLayerNotReady
	}
	if len(l.text) > maxLen {
		return "", core.Errorf("layer", core.ErrBufferTooSmall, "%d bytes exceed %d", len(l.text), maxLen)
	}
	return l.text, nil
}
