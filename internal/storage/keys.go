package storage

import (
	"path"
	"strings"
)

const (
	keyPrefix = "merged-videos"

	ContentTypeMP4  = "video/mp4"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeEDL  = "text/plain; charset=utf-8"
)

// VideoKey is where the merged video of a job is stored.
func VideoKey(ownerID, jobID string) string {
	return path.Join(keyPrefix, segment(ownerID), "merged_"+segment(jobID)+".mp4")
}

// ThumbnailKey is where the merged video's thumbnail is stored.
func ThumbnailKey(ownerID, jobID string) string {
	return path.Join(keyPrefix, segment(ownerID), "thumbs", "thumb_"+segment(jobID)+".jpg")
}

// EDLKey is where the edit decision list describing the merge is stored.
func EDLKey(ownerID, jobID string) string {
	return path.Join(keyPrefix, segment(ownerID), "edl", "merged_"+segment(jobID)+".edl")
}

// ContentTypeFor maps a file extension to the content type stored with it.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4", ".m4v":
		return ContentTypeMP4
	case ".jpg", ".jpeg":
		return ContentTypeJPEG
	case ".edl":
		return ContentTypeEDL
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// segment keeps caller-supplied ids from adding or escaping key levels.
func segment(s string) string {
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
