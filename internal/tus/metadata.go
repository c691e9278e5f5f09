package tus

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// EncodeMetadata кодирует метаданные для заголовка Upload-Metadata:
// пары "ключ base64(значение)" через запятую, ключи по алфавиту.
func EncodeMetadata(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+base64.StdEncoding.EncodeToString([]byte(md[k])))
	}
	return strings.Join(parts, ",")
}

// DecodeMetadata разбирает заголовок Upload-Metadata.
func DecodeMetadata(header string) (map[string]string, error) {
	md := make(map[string]string)
	if strings.TrimSpace(header) == "" {
		return md, nil
	}
	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		key, val, hasVal := strings.Cut(pair, " ")
		if key == "" {
			return nil, errors.New("пустой ключ в Upload-Metadata")
		}
		if !hasVal {
			md[key] = ""
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return nil, fmt.Errorf("значение %q в Upload-Metadata: %w", key, err)
		}
		md[key] = string(decoded)
	}
	return md, nil
}

// FileIdentity — признаки файла, из которых строится отпечаток.
type FileIdentity struct {
	Name     string
	MimeType string
	Size     int64
	ModTime  time.Time
}

// Fingerprint вычисляет отпечаток загрузки по файлу, endpoint и владельцу
// сессии. Одинаковый файл, загружаемый другим пользователем, получает
// другой отпечаток.
func Fingerprint(f FileIdentity, endpoint, owner string) string {
	h := sha256.New()
	for _, part := range []string{
		"tus-go",
		f.Name,
		f.MimeType,
		strconv.FormatInt(f.Size, 10),
		strconv.FormatInt(f.ModTime.UnixMilli(), 10),
		endpoint,
		owner,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
