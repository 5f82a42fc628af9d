package harness

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// progress counts completed writes. The pb bar is goroutine-safe.
type progress interface {
	Increment()
	Finish()
}

type nopProgress struct{}

func (nopProgress) Increment() {}
func (nopProgress) Finish()    {}

type barProgress struct {
	bar *pb.ProgressBar
}

func (p barProgress) Increment() { p.bar.Increment() }
func (p barProgress) Finish()    { p.bar.Finish() }

// newProgress starts a bar on w, or returns a no-op when w is nil.
func newProgress(w io.Writer, total int) progress {
	if w == nil {
		return nopProgress{}
	}

	bar := pb.New(total)
	bar.SetWriter(w)
	bar.Start()

	return barProgress{bar: bar}
}
