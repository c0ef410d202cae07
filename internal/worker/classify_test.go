package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailureClass
	}{
		{
			name:     "engine timeout",
			err:      engine.Timeoutf("engine did not complete within 10m0s"),
			expected: ClassTimeout,
		},
		{
			name:     "filesystem failure from the organizer",
			err:      fmt.Errorf("files: organize img.png: %w", errors.New("no space left on device")),
			expected: ClassFileSystem,
		},
		{
			name:     "missing checkpoint model",
			err:      engine.Fatalf("model %q not found", "sd15"),
			expected: ClassModelNotFound,
		},
		{
			name:     "unknown lora model",
			err:      engine.Fatalf("engine reported failure: unknown model detail_tweaker"),
			expected: ClassModelNotFound,
		},
		{
			name:     "gpu out of memory",
			err:      engine.Fatalf("engine reported failure: CUDA out of memory"),
			expected: ClassResourceExhaustion,
		},
		{
			name:     "resource exhaustion",
			err:      engine.Fatalf("engine reported failure: resource exhausted"),
			expected: ClassResourceExhaustion,
		},
		{
			name:     "engine unreachable",
			err:      engine.Transientf(errors.New("dial tcp: connection refused"), "submit workflow"),
			expected: ClassConnectivity,
		},
		{
			name:     "wrapped transient after retries",
			err:      fmt.Errorf("submission failed after 3 attempts: %w", engine.Transientf(nil, "submit workflow")),
			expected: ClassConnectivity,
		},
		{
			name:     "plain database error",
			err:      errors.New("get job: driver: bad connection"),
			expected: ClassUnknown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class, suggestions := Classify(tc.err)
			assert.Equal(t, tc.expected, class)
			assert.NotEmpty(t, suggestions, "every class carries recovery suggestions")
		})
	}
}
