package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/bess-engine/internal/engine"
	"gopkg.in/yaml.v3"
)

// LoadQuoteRequest reads a YAML quote request from path.
func LoadQuoteRequest(path string) (engine.QuoteRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.QuoteRequest{}, fmt.Errorf("failed to open quote request %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ParseQuoteRequest(f)
}

// ParseQuoteRequest decodes a single YAML quote request. Unknown keys are
// rejected so that misspelled overrides do not silently fall back to defaults.
func ParseQuoteRequest(r io.Reader) (engine.QuoteRequest, error) {
	var req engine.QuoteRequest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return engine.QuoteRequest{}, fmt.Errorf("quote request is empty")
		}
		return engine.QuoteRequest{}, fmt.Errorf("failed to parse quote request: %w", err)
	}
	if req.Facility.UseCaseSlug == "" {
		return engine.QuoteRequest{}, fmt.Errorf("quote request is missing facility.useCaseSlug")
	}
	return req, nil
}
