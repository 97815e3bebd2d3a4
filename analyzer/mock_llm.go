package analyzer

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	// 回显提示词首行，让各个角色的输出互不相同
	first, _, _ := strings.Cut(prompt.User, "\n")
	var sb strings.Builder
	sb.WriteString("- _mock analysis_\n")
	sb.WriteString("- ")
	sb.WriteString(strings.TrimSpace(first))
	sb.WriteString("\n")
	return sb.String(), nil
}
