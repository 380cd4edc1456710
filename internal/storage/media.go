package storage

import (
	"path/filepath"
	"strings"
)

// MediaRules - допустимые расширения и максимальный размер медиафайла
type MediaRules struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// NewMediaRules принимает расширения без точки ("png", "mp4")
func NewMediaRules(extensions []string, maxBytes int64) MediaRules {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return MediaRules{allowed: allowed, maxBytes: maxBytes}
}

// Allows сообщает, можно ли загружать файл с таким именем и размером
func (r MediaRules) Allows(filename string, size int64) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := r.allowed[ext]; !ok {
		return false
	}
	return size > 0 && (r.maxBytes <= 0 || size <= r.maxBytes)
}

// MaxBytes - предел размера одного файла, 0 - без ограничения
func (r MediaRules) MaxBytes() int64 {
	return r.maxBytes
}
