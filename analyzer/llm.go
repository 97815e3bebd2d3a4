package analyzer

import (
	"context"
	"fmt"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置（与服务商无关）。
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewLLM 按 provider 构造对应的模型客户端。
func NewLLM(cfg *LLMSettings) (LLMClient, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key_env in config")
	}
	switch cfg.Provider {
	case "mock":
		return MockLLM{}, nil
	case "openai":
		return NewOpenAILLM(cfg)
	case "groq":
		// Groq 提供 OpenAI 兼容接口，未填写 base_url 时使用官方地址。
		s := *cfg
		if s.BaseURL == "" {
			s.BaseURL = groqBaseURL
		}
		return NewOpenAILLM(&s)
	case "deepseek":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return NewOpenAILLM(cfg)
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}
