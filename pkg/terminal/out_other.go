//go:build !linux && !darwin && !freebsd

package terminal

func (w *pagingWriter) getWindowSize() bool {
	return false
}
