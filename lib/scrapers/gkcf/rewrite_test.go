package gkcf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteRelativeRefs(t *testing.T) {
	const origin = "http://gkcf.jxedu.gov.cn"

	cases := []struct {
		input    string
		expected string
	}{
		{
			input:    `<script src="lib/x.js"></script>`,
			expected: `<script src="http://gkcf.jxedu.gov.cn/lib/x.js"></script>`,
		},
		{
			input:    `<script src="js/main.js"></script>`,
			expected: `<script src="http://gkcf.jxedu.gov.cn/js/main.js"></script>`,
		},
		{
			input:    `<link href="lib/layui/css/layui.css" rel="stylesheet">`,
			expected: `<link href="http://gkcf.jxedu.gov.cn/lib/layui/css/layui.css" rel="stylesheet">`,
		},
		{
			input:    `<link href="css/site.css" rel="stylesheet">`,
			expected: `<link href="http://gkcf.jxedu.gov.cn/css/site.css" rel="stylesheet">`,
		},
		{
			input:    `<script src="http://other/x.js"></script>`,
			expected: `<script src="http://other/x.js"></script>`,
		},
		{
			// only the four known prefixes are rewritten
			input:    `<img src="images/logo.png"><a href="js/help.html">help</a>`,
			expected: `<img src="images/logo.png"><a href="js/help.html">help</a>`,
		},
		{
			input:    `<script src='lib/x.js'></script>`,
			expected: `<script src='lib/x.js'></script>`,
		},
	}

	for _, test := range cases {
		require.Equal(t, test.expected, RewriteRelativeRefs(test.input, origin))
	}
}

func TestRewriteRelativeRefsTrailingSlash(t *testing.T) {
	out := RewriteRelativeRefs(`<script src="lib/x.js"></script>`, "http://example.com/")
	require.Equal(t, `<script src="http://example.com/lib/x.js"></script>`, out)
}

func TestRewriteIsNotRepeated(t *testing.T) {
	const origin = "http://gkcf.jxedu.gov.cn"
	once := RewriteRelativeRefs(`<script src="lib/x.js"></script>`, origin)
	require.Equal(t, once, RewriteRelativeRefs(once, origin))
}
