package capabilities

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

var (
	compiledMu sync.Mutex
	compiled   = map[ID]*gojsonschema.Schema{}
)

func compiledSchema(d Descriptor) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[d.ID]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Parameters))
	if err != nil {
		return nil, errors.Wrapf(err, "compile schema for %s", d.Name)
	}
	compiled[d.ID] = s
	return s, nil
}

// validateArgs checks the model-supplied arguments against the
// capability's parameter schema.
func validateArgs(d Descriptor, args map[string]any) error {
	if d.Parameters == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	s, err := compiledSchema(d)
	if err != nil {
		return err
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return errors.Wrapf(err, "validate arguments for %s", d.Name)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return &InvalidArgumentsError{Capability: d.Name, Problems: problems}
}
