package objectstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported upload type")
	ErrEmpty           = errors.New("upload is empty")
)

// 允许上传的类型及其对象后缀
var allowedTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Image 是已校验的上传内容
type Image struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// Extension 返回内容类型对应的后缀
func (i Image) Extension() string {
	return allowedTypes[i.ContentType]
}

// InspectImage 按内容嗅探类型（不信任客户端的 Content-Type），并检查大小
func InspectImage(r io.Reader, size, maxBytes int64) (Image, error) {
	if size <= 0 {
		return Image{}, ErrEmpty
	}
	if maxBytes > 0 && size > maxBytes {
		return Image{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, maxBytes)
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Image{}, fmt.Errorf("read upload header: %w", err)
	}

	contentType := http.DetectContentType(head)
	if _, ok := allowedTypes[contentType]; !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return Image{Body: br, Size: size, ContentType: contentType}, nil
}
