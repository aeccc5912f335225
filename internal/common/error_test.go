package common

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "extraction", err: fmt.Errorf("probe: %w", ErrExtractionFailure), want: KindExtraction},
		{name: "no formats", err: ErrNoFormats, want: KindExtraction},
		{name: "expired", err: ErrSessionExpired, want: KindSessionExpired},
		{name: "owner", err: ErrUnauthorized, want: KindUnauthorized},
		{name: "limiter", err: ErrConcurrency, want: KindConcurrency},
		{name: "missing", err: fmt.Errorf("resolve: %w", ErrFileMissing), want: KindFileMissing},
		{name: "transient", err: fmt.Errorf("engine: %w", ErrDownloadTransient), want: KindTransient},
		{name: "delivery folds into fatal", err: fmt.Errorf("upload: %w", ErrDeliveryFailed), want: KindFatal},
		{name: "anything else", err: errors.New("boom"), want: KindFatal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKindRetryable(t *testing.T) {
	require.True(t, KindTransient.Retryable())
	require.True(t, KindFatal.Retryable())
	require.False(t, KindFileMissing.Retryable())
	require.False(t, KindExtraction.Retryable())
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "", UserMessage(nil))
	require.Equal(t, "short", UserMessage(errors.New("short")))

	long := strings.Repeat("ж", 500)
	msg := UserMessage(errors.New(long))
	require.Len(t, []rune(msg), maxUserMessage)
}
