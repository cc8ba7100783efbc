package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestClassifyBrowserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want schemas.ErrorCode
	}{
		{"nil", nil, ""},
		{"typed not found", fmt.Errorf("click #buy: %w", schemas.ErrElementNotFound), schemas.ErrCodeElementNotFound},
		{"invalid selector", errors.New("invalid selector: ]]"), schemas.ErrCodeElementNotFound},
		{"no node", errors.New("could not find node with given id"), schemas.ErrCodeExecutionFailure},
		{"no node message", errors.New("No node found for selector"), schemas.ErrCodeElementNotFound},
		{"deadline", fmt.Errorf("goto: %w", context.DeadlineExceeded), schemas.ErrCodeTimeoutError},
		{"timeout text", errors.New("Timeout 30000ms exceeded."), schemas.ErrCodeTimeoutError},
		{"net error", errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), schemas.ErrCodeNavigationError},
		{"navigation text", errors.New("navigation interrupted by another navigation"), schemas.ErrCodeNavigationError},
		{"other", errors.New("target closed"), schemas.ErrCodeExecutionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyBrowserError(tt.err))
		})
	}
}
