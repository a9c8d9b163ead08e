package textnorm

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_CJKSpacing(t *testing.T) {
	assert.Equal(t, "测试", Clean("测 试"))
	assert.Equal(t, "测试 OCR", Clean("测试 OCR"))
	assert.Equal(t, "测试 OCR", Clean("测试    OCR"))
	assert.Equal(t, "Hello World 测试", Clean("Hello World 测试"))
	assert.Equal(t, "Hello World 测试", Clean("  Hello   World  测 试 "))
}

func TestClean_FullPipeline(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"noise and quotes", "| “Quoted” text ‘here’ ]", `"Quoted" text 'here'`},
		{"space before punctuation", "Hello , world !", "Hello, world!"},
		{"sentence spacing", "First sentence.Second one", "First sentence. Second one"},
		{"cjk sentence", "你好。世界", "你好。 世界"},
		{"decimal kept", "Pi is 3.14 today", "Pi is 3.14 today"},
		{"abbreviation kept", "U.S.A and e.g.Text", "U.S.A and e.g.Text"},
		{"blank lines", "line one\n\n\n\nline two\n\n", "line one\n\nline two"},
		{"crlf", "a\r\nb", "a\nb"},
		{"zero width", "\uFEFFHel\u200Blo", "Hello"},
		{"hangul spacing kept", "안녕 하세요", "안녕 하세요"},
		{"japanese", "日本 語 テキスト", "日本語テキスト"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestRules_Order(t *testing.T) {
	rules := New(DefaultOptions()).Rules()
	require.Len(t, rules, 6)

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"strip-noise",
		"unify-quotes",
		"collapse-whitespace",
		"script-spacing:preserve",
		"punctuation-spacing",
		"collapse-blank-lines",
	}, names)
}

func TestStripNoise(t *testing.T) {
	assert.Equal(t, "a  b", StripNoise("a | b"))
	assert.Equal(t, "table", StripNoise("【table】"))
	assert.Equal(t, "(kept)", StripNoise("(kept)"))
}

func TestStripNoise_CustomSet(t *testing.T) {
	n := New(Options{Noise: "#"})
	assert.Equal(t, "a | b", n.Clean("a #| b"))
}

func TestUnifyQuotes(t *testing.T) {
	assert.Equal(t, `"a" 'b' "c"`, UnifyQuotes("“a” ‘b’ „c“"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\nc d\n", CollapseWhitespace("  a \t b  \n c　 d \n"))
}

func TestPreserveSpacing(t *testing.T) {
	p := PreserveSpacing{}
	assert.Equal(t, "测试", p.Apply("测 试"))
	assert.Equal(t, "测试 OCR", p.Apply("测试   OCR"))
	assert.Equal(t, "测试OCR", p.Apply("测试OCR"))
	assert.Equal(t, "hello world", p.Apply("hello world"))
	assert.Equal(t, "测\n试", p.Apply("测\n试"))
}

func TestInsertSpacing(t *testing.T) {
	p := InsertSpacing{}
	assert.Equal(t, "测试 OCR", p.Apply("测试OCR"))
	assert.Equal(t, "版本 2 发布", p.Apply("版本2发布"))
	assert.Equal(t, "测试", p.Apply("测 试"))

	n := New(Options{Spacing: InsertSpacing{}})
	assert.Equal(t, "使用 Go 语言", n.Clean("使用Go语言"))
}

func TestSpacingPolicyByName(t *testing.T) {
	p, ok := SpacingPolicyByName("")
	require.True(t, ok)
	assert.Equal(t, "preserve", p.Name())

	p, ok = SpacingPolicyByName("INSERT")
	require.True(t, ok)
	assert.Equal(t, "insert", p.Name())

	_, ok = SpacingPolicyByName("pangu")
	assert.False(t, ok)
}

func TestNormalizePunctuation(t *testing.T) {
	assert.Equal(t, "Wait... Now", NormalizePunctuation("Wait ... Now"))
	assert.Equal(t, "Really?! Yes", NormalizePunctuation("Really ?!Yes"))
	assert.Equal(t, "costs .5 dollars", NormalizePunctuation("costs .5 dollars"))
	assert.Equal(t, "见附件：说明", NormalizePunctuation("见附件 ：说明"))
	assert.Equal(t, "example.com/a?q=1", NormalizePunctuation("example.com/a?q=1"))
}

func TestCollapseBlankLines(t *testing.T) {
	assert.Equal(t, "a\n\nb", CollapseBlankLines("\n\na\n \n\t\nb\n"))
}

func TestClean_Idempotent_Samples(t *testing.T) {
	samples := []string{
		"测 试 OCR . Next",
		"Hello World 测试",
		"  “Mixed”  text | 中文 , English.Next 。下一句！Ok ?",
		"a\n\n\n  b  c\n",
		"e|\u0301 combining",
		"版本2.0 发布了 。新功能",
	}
	for _, s := range samples {
		once := Clean(s)
		assert.Equal(t, once, Clean(once), "input %q", s)
	}
}

func TestClean_Idempotent_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	fragments := gen.SliceOf(gen.OneConstOf(
		"测", "试", "日本", " ", "  ", "\t", "\n", "\n\n\n", "OCR", "Hello", "world",
		"3.14", ".", ",", "!", "?", "。", "，", "！", "|", "[", "】", "“", "”", "‘", "’",
		"U.S.A", "\u200B", "\u0301", "안녕", "(", ")", ":", "-",
	), reflect.TypeOf(""))

	properties.Property("clean is idempotent on mixed fragments", prop.ForAll(
		func(parts []string) bool {
			once := Clean(strings.Join(parts, ""))
			return Clean(once) == once
		},
		fragments,
	))

	properties.Property("clean is idempotent on arbitrary strings", prop.ForAll(
		func(s string) bool {
			once := Clean(s)
			return Clean(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
