package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"mochimo/pkg/objectstore"
)

// SavedObject 是 FakeImageStore 收到的一次上传
type SavedObject struct {
	Kind        string
	ProjectID   int64
	ContentType string
	Body        []byte
	URL         string
}

// FakeImageStore 在内存中保存上传内容；Err 非空时 Save 直接返回它
type FakeImageStore struct {
	mu    sync.Mutex
	Saved []SavedObject
	Err   error
}

var _ objectstore.ImageStore = (*FakeImageStore)(nil)

func (f *FakeImageStore) Save(_ context.Context, kind string, projectID int64, img objectstore.Image) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	body, err := io.ReadAll(img.Body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("memory://%s/%d/%d%s", kind, projectID, len(f.Saved)+1, img.Extension())
	f.Saved = append(f.Saved, SavedObject{
		Kind:        kind,
		ProjectID:   projectID,
		ContentType: img.ContentType,
		Body:        body,
		URL:         url,
	})
	return url, nil
}

// PNG 返回一个能通过类型嗅探的最小 PNG 上传
func PNG() objectstore.Image {
	b := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return objectstore.Image{Body: bytes.NewReader(b), Size: int64(len(b)), ContentType: "image/png"}
}
