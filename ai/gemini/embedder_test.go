package gemini

import (
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/lectern/ai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "throttled", err: &googleapi.Error{Code: 429}, transient: true},
		{name: "unavailable", err: fmt.Errorf("rpc: %w", &googleapi.Error{Code: 503}), transient: true},
		{name: "bad request", err: &googleapi.Error{Code: 400, Message: "request timeout field invalid"}, transient: false},
		{name: "forbidden", err: &googleapi.Error{Code: 403}, transient: false},
		{name: "untyped network error", err: errors.New("connection reset by peer"), transient: true},
		{name: "untyped permanent", err: errors.New("model not found"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, errors.Is(classify(tt.err), ai.ErrTransient))
		})
	}
}
