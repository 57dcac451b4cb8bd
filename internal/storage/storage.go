package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
	Delete(ctx context.Context, objectName string) error
}

// DocumentObject is where an uploaded knowledge file is stored.
func DocumentObject(userID, fileName string) string {
	return fmt.Sprintf("knowledge/%s/%s-%s", userID, uuid.NewString(), sanitize(fileName))
}

// TurnAudioObject is where the audio of a turn is stored.
func TurnAudioObject(sessionID, ext string) string {
	return fmt.Sprintf("sessions/%s/%s.%s", sessionID, uuid.NewString(), strings.TrimPrefix(ext, "."))
}

func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 || name == "." || name == "/" {
		return "file"
	}
	return b.String()
}
