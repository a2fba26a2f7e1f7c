// Package guard holds the client-side limits checked before any request is
// sent. The server enforces the same limits; these checks only save a round
// trip and give a clearer message.
package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultMaxRooms       = 2
	DefaultMaxDocsPerRoom = 3
	DefaultMaxFileSize    = 2 * 1024 * 1024
)

// Limits mirrors the free-tier quotas.
type Limits struct {
	MaxRooms       int
	MaxDocsPerRoom int
	MaxFileSize    int64
	AllowedTypes   []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxRooms:       DefaultMaxRooms,
		MaxDocsPerRoom: DefaultMaxDocsPerRoom,
		MaxFileSize:    DefaultMaxFileSize,
		AllowedTypes:   []string{"application/pdf", "text/plain"},
	}
}

// Violation is a local validation failure. Its message is meant for display.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string       { return v.Message }
func (v *Violation) UserMessage() string { return v.Message }

const (
	RuleRoomCount = "room_count"
	RuleDocCount  = "doc_count"
	RuleFileSize  = "file_size"
	RuleFileType  = "file_type"
)

// CheckRoomCreate rejects creating a room once the user owns the maximum.
func (l Limits) CheckRoomCreate(existing int) error {
	if l.MaxRooms > 0 && existing >= l.MaxRooms {
		return &Violation{Rule: RuleRoomCount, Message: fmt.Sprintf("Maximum %d rooms allowed.", l.MaxRooms)}
	}
	return nil
}

// FileInfo is what CheckUpload needs to know about a candidate file.
type FileInfo struct {
	Name     string
	Size     int64
	MIMEType string
}

// Inspect stats path and sniffs its content type.
func Inspect(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	if st.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory", path)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("detect type: %w", err)
	}
	return FileInfo{Name: filepath.Base(path), Size: st.Size(), MIMEType: mtype.String()}, nil
}

// CheckUpload applies size, type and per-room count in that order, matching
// the order the messages are shown in the web client.
func (l Limits) CheckUpload(file FileInfo, docsInRoom int) error {
	if l.MaxFileSize > 0 && file.Size > l.MaxFileSize {
		return &Violation{Rule: RuleFileSize, Message: fmt.Sprintf("File exceeds %s limit.", sizeLabel(l.MaxFileSize))}
	}
	if !l.allowed(file.MIMEType) {
		return &Violation{Rule: RuleFileType, Message: "Only PDF and TXT files are allowed."}
	}
	return l.CheckDocCount(docsInRoom)
}

// CheckDocCount rejects adding a document to a full room.
func (l Limits) CheckDocCount(docsInRoom int) error {
	if l.MaxDocsPerRoom > 0 && docsInRoom >= l.MaxDocsPerRoom {
		return &Violation{Rule: RuleDocCount, Message: fmt.Sprintf("Maximum %d documents allowed.", l.MaxDocsPerRoom)}
	}
	return nil
}

func (l Limits) allowed(mtype string) bool {
	return l.match(mtype) != ""
}

// match returns the allowed type that mtype is, or descends from. JSON, CSV
// and HTML sniff as their own types but are children of text/plain.
func (l Limits) match(mtype string) string {
	base := baseType(mtype)
	if base == "" {
		return ""
	}
	for _, allowed := range l.AllowedTypes {
		if strings.EqualFold(base, allowed) {
			return allowed
		}
	}
	for m := mimetype.Lookup(base); m != nil; m = m.Parent() {
		for _, allowed := range l.AllowedTypes {
			if m.Is(allowed) {
				return allowed
			}
		}
	}
	return ""
}

// ContentType is the part type to send for file: the allowed type it
// matched, so a sniffed text/csv goes out as text/plain.
func (l Limits) ContentType(file FileInfo) string {
	if t := l.match(file.MIMEType); t != "" {
		return t
	}
	if base := baseType(file.MIMEType); base != "" {
		return base
	}
	return "application/octet-stream"
}

func baseType(mtype string) string {
	if i := strings.IndexByte(mtype, ';'); i >= 0 {
		mtype = mtype[:i]
	}
	return strings.ToLower(strings.TrimSpace(mtype))
}

// sizeLabel renders whole mebibytes as "2MB" and anything else via humanize.
func sizeLabel(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return humanize.IBytes(uint64(n))
}

// Extensions lists the file name suffixes offered by the file picker.
func Extensions() []string {
	return []string{".pdf", ".txt"}
}
