package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"mochimo/pkg/objectstore"
)

const uploadField = "file"

// multipart 头部等额外开销
const multipartOverhead = 64 << 10

// readUpload 读取 multipart 中的 file 字段并校验大小与类型；调用方负责 close
func readUpload(c *gin.Context, maxBytes int64) (objectstore.Image, func(), error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return objectstore.Image{}, nil, fmt.Errorf("%w: limit is %d bytes", objectstore.ErrTooLarge, maxBytes)
		}
		return objectstore.Image{}, nil, fmt.Errorf("%w: missing %q file field", objectstore.ErrEmpty, uploadField)
	}

	f, err := fh.Open()
	if err != nil {
		return objectstore.Image{}, nil, fmt.Errorf("open upload: %w", err)
	}
	img, err := objectstore.InspectImage(f, fh.Size, maxBytes)
	if err != nil {
		_ = f.Close()
		return objectstore.Image{}, nil, err
	}
	return img, func() { _ = f.Close() }, nil
}
