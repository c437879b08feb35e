package xr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		err   error
		want  Category
	}{
		{"permission at session", StageSession, fmt.Errorf("prompt: %w", ErrPermissionDenied), CategoryPermissionDenied},
		{"unsupported mode", StageSession, ErrNotSupported, CategoryUnsupported},
		{"unsupported probe", StageCapability, ErrNotSupported, CategoryUnsupported},
		{"unsupported space type", StageLocalSpace, ErrNotSupported, CategoryAcquisitionFailed},
		{"hit test rejected", StageHitTestSource, errors.New("boom"), CategoryAcquisitionFailed},
		{"ended mid acquisition", StageViewerSpace, ErrSessionEnded, CategoryEndedExternally},
		{"deadline", StageSession, context.DeadlineExceeded, CategoryAcquisitionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stage, tt.err)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.stage, got.Stage)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_KeepsExistingError(t *testing.T) {
	orig := NewError(CategoryUnsupported, StageSession, ErrNotSupported)
	wrapped := fmt.Errorf("start: %w", orig)
	assert.Same(t, orig, Classify(StageHitTestSource, wrapped))
}

func TestError_MessagesAreDistinct(t *testing.T) {
	seen := make(map[string]Category)
	for _, c := range []Category{CategoryUnsupported, CategoryPermissionDenied, CategoryAcquisitionFailed, CategoryEndedExternally} {
		msg := NewError(c, StageSession, nil).Message()
		require.NotEmpty(t, msg)
		if prev, ok := seen[msg]; ok {
			t.Fatalf("categories %s and %s share message %q", prev, c, msg)
		}
		seen[msg] = c
	}
}

func TestCategory_Retryable(t *testing.T) {
	assert.False(t, CategoryUnsupported.Retryable())
	assert.True(t, CategoryPermissionDenied.Retryable())
	assert.True(t, CategoryAcquisitionFailed.Retryable())
	assert.True(t, CategoryEndedExternally.Retryable())
}

func TestCategoryOf(t *testing.T) {
	c, ok := CategoryOf(fmt.Errorf("x: %w", NewError(CategoryPermissionDenied, StageSession, nil)))
	assert.True(t, ok)
	assert.Equal(t, CategoryPermissionDenied, c)

	_, ok = CategoryOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestError_String(t *testing.T) {
	assert.Equal(t, "unsupported at capability", NewError(CategoryUnsupported, StageCapability, nil).Error())
	assert.Contains(t, NewError(CategoryAcquisitionFailed, StageLocalSpace, errors.New("denied space")).Error(), "denied space")
}

func TestHasFeature(t *testing.T) {
	granted := []Feature{FeatureLocal, FeatureHitTest}
	assert.True(t, HasFeature(granted, FeatureHitTest))
	assert.False(t, HasFeature(granted, FeatureDOMOverlay))
}
