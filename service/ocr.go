package service

import (
	"context"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// OCRWorker recognizes text in an image. Implementations own any native
// resources and must be safe for concurrent callers.
type OCRWorker interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// tesseractWorker wraps a single gosseract client. The client is not
// thread-safe, so recognition jobs are serialized through a mutex; concurrent
// OCR requests queue up behind one another. Throughput tradeoff accepted for
// now.
type tesseractWorker struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func newTesseractWorker() (OCRWorker, error) {
	return &tesseractWorker{client: gosseract.NewClient()}, nil
}

func (w *tesseractWorker) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return w.client.Text()
}

func (w *tesseractWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client.Close()
}
