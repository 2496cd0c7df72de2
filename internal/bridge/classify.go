package bridge

import (
	"path"
	"strings"
	"unicode/utf8"
)

// binaryExtensions mirrors the upload pipeline's view of which extensions are
// never stored as editable docs, regardless of content.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".pdf": {}, ".eps": {}, ".ps": {},
	".zip": {}, ".gz": {}, ".tar": {},
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {},
	".xls": {}, ".xlsx": {}, ".doc": {}, ".docx": {}, ".ppt": {}, ".pptx": {},
}

const classifySampleSize = 64 * 1024

// Classifier decides whether pushed content should be stored as an editable
// doc or an opaque binary file. The existing-entity snapshot is fetched once
// per push and passed in, so classification and the subsequent upsert see the
// same tree state.
type Classifier struct{}

// Classify returns the entity kind for new content at path. Classification is
// sticky: once a path holds a binary file it stays a binary file, even when
// the replacement content is valid text. New paths are sniffed.
func (Classifier) Classify(filePath string, content []byte, existing map[string]EntityKind) EntityKind {
	if kind, ok := existing["/"+filePath]; ok && kind == EntityFile {
		return EntityFile
	}
	if isBinaryContent(filePath, content) {
		return EntityFile
	}
	return EntityDoc
}

func isBinaryContent(filePath string, content []byte) bool {
	ext := strings.ToLower(path.Ext(filePath))
	if _, ok := binaryExtensions[ext]; ok {
		return true
	}
	sample := content
	if len(sample) > classifySampleSize {
		sample = sample[:classifySampleSize]
		// Avoid flagging a multi-byte rune cut at the sample boundary.
		for len(sample) > 0 && !utf8.RuneStart(sample[len(sample)-1]) {
			sample = sample[:len(sample)-1]
		}
		if len(sample) > 0 {
			sample = sample[:len(sample)-1]
		}
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return !utf8.Valid(sample)
}

// SplitLines breaks doc content into lines on any of \r\n, \n, \r, matching
// how the editor stores documents.
func SplitLines(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// EntityKindsByPath indexes the current tree for sticky classification.
func EntityKindsByPath(entities []Entity) map[string]EntityKind {
	kinds := make(map[string]EntityKind, len(entities))
	for _, entity := range entities {
		kinds[entity.Path] = entity.Kind
	}
	return kinds
}
