package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentReplacesUpstreamNameCaseInsensitively(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "import", in: "from freqtrade.strategy import IStrategy", want: "from 10xtraders.strategy import IStrategy"},
		{name: "mixed case", in: "FreqTrade and FREQTRADE", want: "10xtraders and 10xtraders"},
		{name: "untouched", in: "class Momentum(IStrategy):", want: "class Momentum(IStrategy):"},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Content(tc.in))
		})
	}
}

func TestDesanitizeRestoresUpstreamName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "from freqtrade.strategy import IStrategy", Desanitize("from 10XTraders.strategy import IStrategy"))
	assert.Equal(t, "no brand here", Desanitize("no brand here"))
}

func TestContentAndDesanitizeRoundTripLowercaseSource(t *testing.T) {
	t.Parallel()

	src := "import freqtrade.vendor.qtpylib as qtpylib\nfrom freqtrade.strategy import IStrategy\n"
	assert.Equal(t, src, Desanitize(Content(src)))
}

func TestLogVariantsMapEveryLine(t *testing.T) {
	t.Parallel()

	lines := []string{"freqtrade.worker - INFO - Bot heartbeat", "plain line"}
	sanitized := Logs(lines)
	assert.Equal(t, []string{"10xtraders.worker - INFO - Bot heartbeat", "plain line"}, sanitized)
	assert.Equal(t, lines, DesanitizeLogs(sanitized))
	assert.Nil(t, Logs(nil))
}
