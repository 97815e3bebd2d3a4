package analyzer

import (
	"fmt"
	"strings"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System string
	User   string
}

// Role 标识会诊团队中的一个角色。
type Role string

const (
	RoleCardiologist          Role = "Cardiologist"
	RolePsychologist          Role = "Psychologist"
	RolePulmonologist         Role = "Pulmonologist"
	RoleMultidisciplinaryTeam Role = "MultidisciplinaryTeam"
)

// specialistBriefs 各专科的指令，报告原文拼接在其后。
var specialistBriefs = map[Role]string{
	RoleCardiologist: `You are a cardiologist reviewing a patient's medical report.
Identify cardiac conditions that could explain the symptoms. Answer as short bullet points:
- 2-3 possible cardiac causes
- 2-3 recommended next steps
No long explanations or extra context.`,
	RolePsychologist: `You are a psychologist reviewing a patient's report.
Identify the mental health factors most likely affecting the patient's well-being. Answer as short bullet points:
- 2-3 possible psychological issues
- 2-3 recommended next steps
Keep it short and factual.`,
	RolePulmonologist: `You are a pulmonologist reviewing a patient's report.
Summarise the likely respiratory concerns. Answer as short bullet points:
- 2-3 possible respiratory issues
- 2-3 next steps
Stay under 100 words in total.`,
}

// BuildSpecialistPrompt 生成单个专科医生的提示词。
func BuildSpecialistPrompt(role Role, medicalReport string) (Prompt, error) {
	brief, ok := specialistBriefs[role]
	if !ok {
		return Prompt{}, fmt.Errorf("no specialist prompt for role %q", role)
	}
	return Prompt{
		System: "Answer in Markdown only. Do not add a preamble.",
		User:   fmt.Sprintf("%s\n\nMedical report:\n%s", brief, strings.TrimSpace(medicalReport)),
	}, nil
}

// BuildTeamPrompt 汇总三位专科医生的结论，生成团队总结提示词。
func BuildTeamPrompt(cardiologist, psychologist, pulmonologist string) Prompt {
	var sb strings.Builder
	sb.WriteString("You are a multidisciplinary medical team (cardiologist, psychologist, pulmonologist).\n")
	sb.WriteString("Review the three reports below and summarise them in under 120 words.\n")
	sb.WriteString("Return exactly three bullet points, each naming:\n")
	sb.WriteString("- one possible health issue\n")
	sb.WriteString("- one brief reason drawn from the reports\n\n")
	fmt.Fprintf(&sb, "Cardiologist report:\n%s\n\n", cardiologist)
	fmt.Fprintf(&sb, "Psychologist report:\n%s\n\n", psychologist)
	fmt.Fprintf(&sb, "Pulmonologist report:\n%s\n", pulmonologist)

	return Prompt{
		System: "Answer in Markdown only. Do not add a preamble.",
		User:   sb.String(),
	}
}
