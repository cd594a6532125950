package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

const rolePrompt = `You are an expert career consultant and resume optimization specialist. You analyze resumes against job descriptions and provide actionable feedback.

Focus on:
- Skills alignment and gaps
- Experience relevance
- Keyword optimization for ATS systems
- Quantifiable achievements

Be constructive, specific and concise.`

const analysisPromptTemplate = `Analyze how well this candidate fits the job. Base your assessment only on the resume evidence below.

Most relevant resume sections:
%s

Job Description:
%s

Weigh the fit as: skills alignment 40%%, experience relevance 30%%, education requirements 15%%, industry knowledge 10%%, additional qualifications 5%%.

Respond with ONLY a JSON object in this exact shape:
{"strengths": ["..."], "gaps": ["..."], "suggestions": ["..."], "model_score": 0-100}`

const tailorPromptTemplate = `Create a tailored version of this resume that better aligns with the job requirements.

Resume:
%s

Job Description:
%s

Instructions:
1. Preserve the candidate's actual experience and skills
2. Reorder and emphasize relevant experiences
3. Use keywords from the job description where appropriate
4. Maintain professional tone and accuracy

Return only the tailored resume text.`

func buildAnalysisPrompt(retrievedChunks []string, jobDescription string) string {
	evidence := strings.Join(retrievedChunks, "\n---\n")
	return fmt.Sprintf(analysisPromptTemplate, evidence, jobDescription)
}

func buildTailorPrompt(resumeText, jobDescription string) string {
	return fmt.Sprintf(tailorPromptTemplate, resumeText, jobDescription)
}

// analysisOutput is the JSON shape the analyze stage asks the model for.
type analysisOutput struct {
	Strengths   []string `json:"strengths"`
	Gaps        []string `json:"gaps"`
	Suggestions []string `json:"suggestions"`
	ModelScore  int      `json:"model_score"`
}

// parseAnalysis extracts the JSON object from a model response, tolerating
// prose or code fences around it. A response with no parseable object
// yields empty lists and a sentinel score of -1 so the evidence score can
// carry the run.
func parseAnalysis(text string) analysisOutput {
	out := analysisOutput{ModelScore: -1}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return out
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return analysisOutput{ModelScore: -1}
	}
	return out
}
