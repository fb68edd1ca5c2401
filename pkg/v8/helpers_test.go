package v8_test

import (
	"github.com/v8scope/v8scope/pkg/layout"
)

func layoutWithout() *layout.Layout {
	return layout.Load(layout.MapSource{})
}
