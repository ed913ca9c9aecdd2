package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressRendererUpdate(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressRenderer(&buf, "分析")

	p.Update(50, "正在提取特征...")
	out := buf.String()
	assert.Contains(t, out, "分析")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "正在提取特征...")
}

func TestProgressRendererNeverRegresses(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressRenderer(&buf, "job")

	p.Update(70, "")
	buf.Reset()
	p.Update(20, "")
	assert.Contains(t, buf.String(), "70%")
}

func TestProgressRendererFinishIsTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressRenderer(&buf, "job")

	p.Finish("done")
	assert.Contains(t, buf.String(), "✅")

	buf.Reset()
	p.Update(10, "late")
	p.Fail("nope")
	assert.Empty(t, buf.String())
}
