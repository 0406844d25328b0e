// Package header персистирует и читает метаданные записи (§4.C, §6 исходной
// спецификации): файл header.json в директории записи.
package header

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/natefinch/atomic"
)

// FileName — имя файла заголовка, бит-в-бит как того требует §6.
const FileName = "header.json"

// Meta — документ метаданных реплея, ровно с полями из §3/§6:
// createdAt, tickRate, segmentSize, totalTicks, totalDuration, плюс
// дополнение Codec (не в исходной спецификации), позволяющее плееру
// узнать, каким кодеком записаны сегменты, не пытаясь угадать по байтам.
type Meta struct {
	CreatedAt     time.Time `json:"createdAt"`
	TickRate      int       `json:"tickRate"`
	SegmentSize   int       `json:"segmentSize"`
	TotalTicks    int64     `json:"totalTicks"`
	TotalDuration int64     `json:"totalDuration"`
	Codec         string    `json:"codec,omitempty"`
}

// Store читает и пишет header.json в заданной директории.
type Store struct {
	dir string
}

// NewStore создаёт Store для директории записи dir. Директория должна
// существовать — Store не создаёт её (это ответственность Recorder.start).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, FileName)
}

// WriteMeta атомарно (пере)записывает header.json. При успешном возврате
// запись гарантированно долговечна: либо виден старый файл целиком, либо
// новый — частичного файла быть не может.
func (s *Store) WriteMeta(m Meta) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal header: %v", errs.ErrIoError, err)
	}

	if err := atomic.WriteFile(s.path(), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("%w: write header: %v", errs.ErrIoError, err)
	}
	return nil
}

// ReadMeta читает header.json. Возвращает errs.ErrNotFound, если файл
// отсутствует.
func (s *Store) ReadMeta() (Meta, error) {
	raw, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", errs.ErrNotFound, s.path())
		}
		return Meta{}, fmt.Errorf("%w: read header: %v", errs.ErrIoError, err)
	}

	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return Meta{}, fmt.Errorf("%w: parse header: %v", errs.ErrCorrupt, err)
	}
	return m, nil
}
