package gemini

import (
	"context"
	"sync"

	"google.golang.org/genai"
)

type fakeModels struct {
	mu sync.Mutex

	generateContent func(model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	generateImages  func(model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	generateVideos  func(model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)

	models   []string
	configs  []*genai.GenerateContentConfig
	contents [][]*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.configs = append(f.configs, cfg)
	f.contents = append(f.contents, contents)
	f.mu.Unlock()
	return f.generateContent(model, contents, cfg)
}

func (f *fakeModels) GenerateImages(_ context.Context, model string, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	return f.generateImages(model, prompt, cfg)
}

func (f *fakeModels) GenerateVideos(_ context.Context, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return f.generateVideos(model, prompt, image, cfg)
}

type fakeOperations struct {
	get func(op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

func (f *fakeOperations) GetVideosOperation(_ context.Context, op *genai.GenerateVideosOperation, _ *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	return f.get(op)
}

type fakeFiles struct {
	downloads int
	data      []byte
}

func (f *fakeFiles) Download(context.Context, genai.DownloadURI, *genai.DownloadFileConfig) ([]byte, error) {
	f.downloads++
	return f.data, nil
}

func textResponse(text string, chunks ...*genai.GroundingChunk) *genai.GenerateContentResponse {
	cand := &genai.Candidate{
		Content:      genai.NewContentFromText(text, genai.RoleModel),
		FinishReason: genai.FinishReasonStop,
	}
	if len(chunks) > 0 {
		cand.GroundingMetadata = &genai.GroundingMetadata{GroundingChunks: chunks}
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{cand}}
}

func blobResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromBytes(data, mimeType, genai.RoleModel),
	}}}
}
