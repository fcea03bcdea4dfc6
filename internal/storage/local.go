// Package storage は生成物の保存先を提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound は成果物が存在しないことを表します。
var ErrNotFound = errors.New("result not found")

// Object は保存済み成果物のメタ情報です。
type Object struct {
	JobID    string
	Filename string
	Path     string
	Size     int64
}

// Local はローカルファイルシステムに成果物を保存します。保存先は <root>/<jobID>/<filename> です。
type Local struct {
	root string
}

// NewLocal は Local を作成します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save は成果物を書き込み、サイズを返します。同じジョブの既存ファイルは置き換えます。
func (l *Local) Save(ctx context.Context, jobID, filename string, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dir, err := l.jobDir(jobID)
	if err != nil {
		return 0, err
	}
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return 0, fmt.Errorf("invalid filename: %q", filename)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	// 途中まで書かれたファイルを読まれないよう、一時ファイルからリネームする
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return int64(len(data)), nil
}

// Open は成果物を開きます。存在しない場合は ErrNotFound を返します。
func (l *Local) Open(jobID string) (*Object, *os.File, error) {
	dir, err := l.jobDir(jobID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		return &Object{
			JobID:    jobID,
			Filename: e.Name(),
			Path:     path,
			Size:     info.Size(),
		}, file, nil
	}
	return nil, nil, ErrNotFound
}

// Delete はジョブの成果物をすべて削除します。存在しない場合も成功扱いです。
func (l *Local) Delete(jobID string) error {
	dir, err := l.jobDir(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (l *Local) jobDir(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id: %q", jobID)
	}
	return filepath.Join(l.root, jobID), nil
}
