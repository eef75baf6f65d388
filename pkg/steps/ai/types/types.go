package types

type ApiType string

const (
	ApiTypeGemini ApiType = "gemini"
	ApiTypeOpenAI ApiType = "openai"
)

// ModelChoice is the user-facing model selector of a submission.
type ModelChoice string

const (
	ModelFlash ModelChoice = "flash"
	ModelPro   ModelChoice = "pro"
)
