// Package blob — object store для изображений сканов.
//
// Две реализации:
//   - FSStore — локальная директория (разработка, тесты)
//   - S3Store — S3-совместимое хранилище через minio-go
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ScanPrefix — префикс, под которым лежат изображения сканов.
const ScanPrefix = "scans/"

// ErrNotFound — объект не найден.
var ErrNotFound = errors.New("blob not found")

// Object — ключ объекта и время последней записи.
type Object struct {
	Key     string
	ModTime time.Time
}

// Store — интерфейс object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// List возвращает все объекты под prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	// URL возвращает адрес, по которому клиент может получить объект.
	URL(key string) string
}

// Open выбирает реализацию по имени драйвера: fs или s3.
func Open(ctx context.Context, driver, dir string, s3 S3Config) (Store, error) {
	switch driver {
	case "fs", "":
		return NewFSStore(dir, s3.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx, s3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// ScanKey возвращает ключ изображения скана: scans/<id>.<ext>.
// Расширение берётся из имени файла, по умолчанию jpg.
func ScanKey(id, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		ext = "jpg"
	}
	return ScanPrefix + id + "." + ext
}

// ContentType определяет MIME-тип изображения по ключу.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
