package spec

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseServiceSpec decodes a service spec document and validates it.
// Unknown fields are rejected so typos like "sidecar:" do not pass silently.
//
// Example document:
//
//	name: my-app
//	image: ./app
//	replicas: 3
//	sidecars:
//	  - name: nginx-rp
//	    image: ./nginx
//	    ports: [80]
func ParseServiceSpec(content string) (*ServiceSpec, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)

	var s ServiceSpec
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return &s, nil
}
