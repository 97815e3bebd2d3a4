// Package analyzer 负责分析接口背后的多智能体会诊：
// 三位专科医生分别阅读报告，再由团队智能体汇总结论。
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medagentx/report"
)

// ErrEmptyReport 报告为空时返回。
var ErrEmptyReport = errors.New("empty report text")

// Analyzer 把报告分发给各专科智能体并汇总结果。
type Analyzer struct {
	llm    LLMClient
	logger *zap.Logger
}

func New(llm LLMClient, logger *zap.Logger) (*Analyzer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{llm: llm, logger: logger}, nil
}

// Analyze 并发运行三位专科医生，再生成团队总结。
// 任一模型调用失败，整次分析即失败。
func (a *Analyzer) Analyze(ctx context.Context, text string) (report.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return report.AnalysisResult{}, ErrEmptyReport
	}

	var res report.AnalysisResult
	g, gctx := errgroup.WithContext(ctx)
	specialists := []struct {
		role Role
		out  *string
	}{
		{RoleCardiologist, &res.Cardiologist},
		{RolePsychologist, &res.Psychologist},
		{RolePulmonologist, &res.Pulmonologist},
	}
	for _, s := range specialists {
		g.Go(func() error {
			prompt, err := BuildSpecialistPrompt(s.role, text)
			if err != nil {
				return err
			}
			out, err := a.run(gctx, s.role, prompt)
			if err != nil {
				return err
			}
			*s.out = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report.AnalysisResult{}, err
	}

	summary, err := a.run(ctx, RoleMultidisciplinaryTeam,
		BuildTeamPrompt(res.Cardiologist, res.Psychologist, res.Pulmonologist))
	if err != nil {
		return report.AnalysisResult{}, err
	}
	res.Summary = summary
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, role Role, prompt Prompt) (string, error) {
	start := time.Now()
	out, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("agent failed", zap.String("role", string(role)), zap.Error(err))
		return "", fmt.Errorf("%s agent: %w", role, err)
	}
	a.logger.Debug("agent done",
		zap.String("role", string(role)),
		zap.Duration("elapsed", time.Since(start)))
	return strings.TrimSpace(out), nil
}
