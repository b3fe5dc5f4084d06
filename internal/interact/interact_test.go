package interact

import "testing"

func TestChromedpKeyCombo(t *testing.T) {
	cases := []struct {
		keys []string
		want string
	}{
		{[]string{"Enter"}, "Enter"},
		{[]string{"Control", "S"}, "Control+S"},
		{[]string{"Control", "Shift", "K"}, "Control+Shift+K"},
	}
	for _, c := range cases {
		got := chromedpKeyCombo(c.keys)
		if got != c.want {
			t.Errorf("chromedpKeyCombo(%v) = %q, want %q", c.keys, got, c.want)
		}
	}
}

func TestElementScriptEmbedsDOMPath(t *testing.T) {
	script := elementScript("div:nth-of-type(1) > button:nth-of-type(2)", "return {ok:true};")
	if !contains(script, "nth-of-type") {
		t.Fatal("expected generated script to embed the dom path walk")
	}
	if !contains(script, "return {ok:true};") {
		t.Fatal("expected generated script to embed the caller-supplied body")
	}
}

func TestIsEditableTypeListIncludesCommonTypes(t *testing.T) {
	list := isEditableTypeList()
	for _, want := range []string{"text", "search", "email", "password", "tel", "url"} {
		if !contains(list, want) {
			t.Errorf("isEditableTypeList missing %q", want)
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
