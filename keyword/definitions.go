package keyword

// Definition describes one operation for clients building test cases.
type Definition struct {
	Name        Operation `json:"name"`
	Description string    `json:"description"`
	Params      []string  `json:"params"`
	Aliases     []string  `json:"aliases,omitempty"`
}

// Definitions lists the vocabulary in a stable order.
func Definitions() []Definition {
	byOp := make(map[Operation][]string)
	for alias, op := range aliases {
		byOp[op] = append(byOp[op], alias)
	}

	defs := make([]Definition, 0, len(vocabulary))
	for _, op := range vocabulary {
		h := handlers[op]
		params := []string{}
		if h.needs&needLocator != 0 {
			params = append(params, "locator")
		}
		if h.needs&(needValue|needValuePresent) != 0 || op == OpCaptureScreenshot {
			params = append(params, "value")
		}
		defs = append(defs, Definition{
			Name:        op,
			Description: h.description,
			Params:      params,
			Aliases:     byOp[op],
		})
	}
	return defs
}
