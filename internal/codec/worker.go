package codec

import (
	"context"
	"fmt"

	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/models"
)

// Op selects the codec operation.
type Op string

const (
	OpBurnAll     Op = "burn-all"
	OpBurnPageOCR Op = "burn-page-ocr"
	OpSanitize    Op = "sanitize"
)

// Request is one codec invocation. Ownership of Data transfers to the
// worker: the caller must not read or write the slice after Do returns the
// request to the worker goroutine. This is what keeps multi-MB rewrites
// copy-free.
type Request struct {
	Op       Op
	Data     []byte
	Password string

	// burn-all inputs
	Words       map[int][]models.OcrWord
	Annotations []models.Annotation
	PageOffset  int
	Semantic    map[int]models.SemanticPage

	// burn-page-ocr inputs
	Page      int
	PageWords []models.OcrWord
}

type response struct {
	data []byte
	err  error
}

// Worker runs codec operations off the caller's goroutine, one goroutine
// per invocation. Concurrent invocations for different documents are fine;
// ordering between them is not guaranteed.
type Worker struct {
	log logging.Logger
}

func NewWorker(log logging.Logger) *Worker {
	return &Worker{log: log}
}

// Do executes the request and returns complete new bytes or an error.
// The caller's original bytes are never mutated: failure leaves the
// document untouched.
func (w *Worker) Do(ctx context.Context, req Request) ([]byte, error) {

	resCh := make(chan response, 1)

	go func(req Request) {
		defer func() {
			if p := recover(); p != nil {
				resCh <- response{err: fmt.Errorf("codec panic: %v", p)}
			}
		}()

		var data []byte
		var err error
		switch req.Op {
		case OpBurnAll:
			data, err = BurnAll(BurnRequest{
				Data:        req.Data,
				Password:    req.Password,
				Words:       req.Words,
				Annotations: req.Annotations,
				PageOffset:  req.PageOffset,
				Semantic:    req.Semantic,
			})
		case OpBurnPageOCR:
			data, err = BurnPageOCR(req.Data, req.Page, req.PageWords)
		case OpSanitize:
			data, err = Sanitize(req.Data, req.Password)
		default:
			err = fmt.Errorf("unknown codec op %q", req.Op)
		}
		resCh <- response{data: data, err: err}
	}(req)

	select {
	case <-ctx.Done():
		// the goroutine finishes on its own; its result is discarded
		return nil, ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			w.log.Warn(ctx, "codec operation failed", "op", string(req.Op), "err", res.err)
		}
		return res.data, res.err
	}
}
