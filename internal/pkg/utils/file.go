package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SupportAudioExt checks if audio ext is supported
func SupportAudioExt(ext string) bool {
	return ext == ".wav" || ext == ".mp3" || ext == ".mp4" || ext == ".m4a" || ext == ".ogg" ||
		ext == ".webm" || ext == ".wma"
}

// MakeFileName joins ID and file into a storage path
func MakeFileName(ID, file string) string {
	if ID == "" {
		return file
	}
	return ID + "/" + file
}

// MakeValidateFileName sanitizes user provided file name and prefixes it with ID.
// Drops any path components, lowercases the extension, replaces spaces.
func MakeValidateFileName(ID, fileName string) (string, error) {
	fn := filepath.Base(strings.TrimSpace(fileName))
	if fn == "" || fn == "." || fn == ".." || fn == string(filepath.Separator) {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	ext := filepath.Ext(fn)
	fn = strings.TrimSuffix(fn, ext) + strings.ToLower(ext)
	fn = strings.ReplaceAll(fn, " ", "_")
	return MakeFileName(ID, fn), nil
}
