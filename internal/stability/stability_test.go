package stability

import (
	"errors"
	"testing"
)

func TestIsNavigatingError(t *testing.T) {
	if !isNavigatingError(errors.New("page is navigating and resource is not available")) {
		t.Fatal("expected navigating error to be detected")
	}
	if isNavigatingError(errors.New("element not found")) {
		t.Fatal("unrelated error should not be classified as navigating")
	}
}

func TestBuildLoadingIndicatorScriptIncludesAllSelectors(t *testing.T) {
	script := buildLoadingIndicatorScript()
	for _, sel := range loadingSelectors {
		if !contains(script, sel) {
			t.Errorf("script missing selector %q", sel)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
