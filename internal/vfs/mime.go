package vfs

import (
	"mime"
	"path"
	"strings"
)

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"csv":  "text/csv",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
	"7z":   "application/x-7z-compressed",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"wmv":  "video/x-ms-wmv",
	"flv":  "video/x-flv",
	"ts":   "text/typescript",
	"tsx":  "text/tsx",
	"jsx":  "text/jsx",
	"py":   "text/x-python",
	"java": "text/x-java-source",
	"cpp":  "text/x-c++src",
	"c":    "text/x-csrc",
	"go":   "text/x-go",
	"rs":   "text/x-rust",
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(Basename(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeType guesses a content type from the extension of name.
func MimeType(name string) string {
	ext := Extension(name)
	if ext == "" {
		return defaultContentType
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return defaultContentType
}

// Category groups files for display: image, video, audio, document or other.
func Category(name string) string {
	switch Extension(name) {
	case "jpg", "jpeg", "png", "gif", "webp", "svg", "bmp":
		return "image"
	case "mp4", "avi", "mov", "wmv", "flv", "mkv", "webm":
		return "video"
	case "mp3", "wav", "ogg", "m4a", "flac", "aac":
		return "audio"
	case "pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt":
		return "document"
	}
	return "other"
}
