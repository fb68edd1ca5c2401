package dap

const startHandle = 1000

// handlesMap maps arbitrary values to unique sequential ids.
// This provides convenient abstraction of references, offering
// opacity and allowing simplification of complex identifiers.
// Based on
// https://github.com/microsoft/vscode-debugadapter-node/blob/master/adapter/src/handles.ts
// Values are comparable, so asking twice for the same frame or scope returns
// the same id and the map only grows with the number of distinct frames.
type handlesMap struct {
	nextHandle  int
	handleToVal map[int]interface{}
	valToHandle map[interface{}]int
}

func newHandlesMap() *handlesMap {
	return &handlesMap{startHandle, make(map[int]interface{}), make(map[interface{}]int)}
}

// lookupOrCreate returns the id of value, creating one if value has none.
func (hs *handlesMap) lookupOrCreate(value interface{}) int {
	if h, ok := hs.valToHandle[value]; ok {
		return h
	}
	h := hs.create(value)
	hs.valToHandle[value] = h
	return h
}

func (hs *handlesMap) create(value interface{}) int {
	next := hs.nextHandle
	hs.nextHandle++
	hs.handleToVal[next] = value
	return next
}

func (hs *handlesMap) get(handle int) (interface{}, bool) {
	v, ok := hs.handleToVal[handle]
	return v, ok
}
